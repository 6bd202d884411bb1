package calendar

import (
	"context"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/leads/ports"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
)

// BookingReader turns the upcoming event window into bookings.
type BookingReader struct {
	source    Source
	owner     string
	lookahead time.Duration
	clock     clock.Clock
	log       *logger.Logger
}

// NewBookingReader reads [now, now+lookahead] from source on every call.
func NewBookingReader(source Source, owner string, lookahead time.Duration, clk clock.Clock, log *logger.Logger) *BookingReader {
	return &BookingReader{source: source, owner: owner, lookahead: lookahead, clock: clk, log: log}
}

// UpcomingBookings implements ports.BookingSource.
func (r *BookingReader) UpcomingBookings(ctx context.Context) (domain.Bookings, error) {
	now := r.clock.Now()
	events, err := r.source.ListUpcomingEvents(ctx, now, now.Add(r.lookahead))
	if err != nil {
		metrics.RecordIntegrationError("calendar")
		return nil, err
	}
	return ExtractBookings(events, r.owner, r.log), nil
}

var _ ports.BookingSource = (*BookingReader)(nil)

// ExtractBookings maps each event to its first guest that is not the calendar
// owner. Events without a start time or a guest are skipped. When a guest has
// several events the earliest wins.
func ExtractBookings(events []Event, owner string, log *logger.Logger) domain.Bookings {
	owner = domain.NormalizeEmail(owner)
	bookings := make(domain.Bookings, len(events))
	for _, ev := range events {
		guest := firstGuest(ev.Attendees, owner)
		if guest == "" {
			log.Warn("calendar event has no guest", "eventId", ev.ID)
			continue
		}
		if ev.Start.IsZero() {
			log.Warn("calendar event has no start time", "eventId", ev.ID, "email", guest)
			continue
		}
		bookings.Add(domain.Booking{
			Email:       guest,
			MeetingTime: ev.Start,
			MeetingLink: ev.MeetingLink,
			EventID:     ev.ID,
		})
	}
	return bookings
}

func firstGuest(attendees []string, owner string) string {
	for _, a := range attendees {
		email := domain.NormalizeEmail(a)
		if email != "" && email != owner {
			return email
		}
	}
	return ""
}
