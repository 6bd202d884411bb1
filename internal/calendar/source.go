// Package calendar reads upcoming meetings from Google Calendar and turns them into bookings.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"leadsync_backend/platform/config"
	"leadsync_backend/platform/googleauth"
	"leadsync_backend/platform/logger"
)

const maxEventsPerPage = 250

// Event is the subset of a calendar event the reconciler needs.
type Event struct {
	ID          string
	Start       time.Time // zero for all-day events without a dateTime
	MeetingLink string
	Attendees   []string
}

// Source lists upcoming calendar events.
type Source interface {
	ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]Event, error)
}

// GoogleSource reads a single calendar through a service account.
type GoogleSource struct {
	svc        *gcal.Service
	calendarID string
	log        *logger.Logger
}

// NewGoogleSource builds the Calendar client with domain-wide delegation to
// the impersonated user. Credential problems fail here rather than per tick.
func NewGoogleSource(ctx context.Context, cfg config.GoogleConfig, log *logger.Logger) (*GoogleSource, error) {
	client, err := googleauth.HTTPClient(ctx, cfg, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("calendar credentials: %w", err)
	}
	return newGoogleSource(ctx, cfg.GetGoogleCalendarID(), log, option.WithHTTPClient(client))
}

func newGoogleSource(ctx context.Context, calendarID string, log *logger.Logger, opts ...option.ClientOption) (*GoogleSource, error) {
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	return &GoogleSource{svc: svc, calendarID: calendarID, log: log}, nil
}

// ListUpcomingEvents expands recurring events and returns them ordered by start time.
func (s *GoogleSource) ListUpcomingEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	call := s.svc.Events.List(s.calendarID).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		ShowDeleted(false).
		MaxResults(maxEventsPerPage)

	var events []Event
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			events = append(events, toEvent(item))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	s.log.Debug("calendar events fetched", "count", len(events), "calendar", s.calendarID)
	return events, nil
}

func toEvent(item *gcal.Event) Event {
	e := Event{ID: item.Id, MeetingLink: meetingLink(item)}
	if item.Start != nil && item.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, item.Start.DateTime); err == nil {
			e.Start = t.UTC()
		}
	}
	for _, a := range item.Attendees {
		if a == nil || a.Email == "" || a.Resource {
			continue
		}
		e.Attendees = append(e.Attendees, a.Email)
	}
	return e
}

func meetingLink(item *gcal.Event) string {
	if item.HangoutLink != "" {
		return item.HangoutLink
	}
	if item.ConferenceData != nil {
		for _, ep := range item.ConferenceData.EntryPoints {
			if ep != nil && ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri
			}
		}
	}
	if strings.HasPrefix(item.Location, "https://") {
		return item.Location
	}
	return ""
}

var _ Source = (*GoogleSource)(nil)
