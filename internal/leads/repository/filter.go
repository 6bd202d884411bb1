package repository

import (
	"fmt"
	"strings"
	"time"

	"leadsync_backend/internal/leads/domain"
)

// Filter is a conjunction of predicates over a lead. Zero-valued fields are
// ignored. When Or is non-empty at least one of its filters must also match.
// Timestamp predicates never match a lead whose timestamp is unset.
type Filter struct {
	Email    string
	Contact  string
	Statuses []domain.Status

	MeetingBooked   *bool
	Reminder24hSent *bool
	Reminder1hSent  *bool
	MeetingTimeFrom *time.Time // inclusive
	MeetingTimeTo   *time.Time // inclusive

	NoBookStage              *int
	NoBookReminderAtOrBefore *time.Time

	NoShowStage          *int
	NoShowTimeAtOrBefore *time.Time
	NoShowTimeBefore     *time.Time // strict

	Or []Filter
}

// Ptr returns a pointer to v, for building filters and patches inline.
func Ptr[T any](v T) *T {
	return &v
}

// Match evaluates the filter against a lead in memory.
func (f Filter) Match(l domain.Lead) bool {
	m := l.Meeting
	if f.Email != "" && domain.NormalizeEmail(f.Email) != l.Email {
		return false
	}
	if f.Contact != "" && f.Contact != l.Contact {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, m.Status) {
		return false
	}
	if f.MeetingBooked != nil && *f.MeetingBooked != m.MeetingBooked {
		return false
	}
	if f.Reminder24hSent != nil && *f.Reminder24hSent != m.Reminder24hSent {
		return false
	}
	if f.Reminder1hSent != nil && *f.Reminder1hSent != m.Reminder1hSent {
		return false
	}
	if f.MeetingTimeFrom != nil && (m.MeetingTime == nil || m.MeetingTime.Before(*f.MeetingTimeFrom)) {
		return false
	}
	if f.MeetingTimeTo != nil && (m.MeetingTime == nil || m.MeetingTime.After(*f.MeetingTimeTo)) {
		return false
	}
	if f.NoBookStage != nil && *f.NoBookStage != m.NoBookReminderStage {
		return false
	}
	if f.NoBookReminderAtOrBefore != nil && (m.NoBookReminderTime == nil || m.NoBookReminderTime.After(*f.NoBookReminderAtOrBefore)) {
		return false
	}
	if f.NoShowStage != nil && *f.NoShowStage != m.NoShowReminderStage {
		return false
	}
	if f.NoShowTimeAtOrBefore != nil && (m.NoShowTime == nil || m.NoShowTime.After(*f.NoShowTimeAtOrBefore)) {
		return false
	}
	if f.NoShowTimeBefore != nil && (m.NoShowTime == nil || !m.NoShowTime.Before(*f.NoShowTimeBefore)) {
		return false
	}
	if len(f.Or) > 0 {
		for _, alt := range f.Or {
			if alt.Match(l) {
				return true
			}
		}
		return false
	}
	return true
}

func containsStatus(statuses []domain.Status, s domain.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// sqlArgs collects positional query arguments.
type sqlArgs struct {
	values []any
}

func (a *sqlArgs) add(v any) string {
	a.values = append(a.values, v)
	return fmt.Sprintf("$%d", len(a.values))
}

// where renders the filter as a SQL boolean expression over the leads table.
func (f Filter) where(args *sqlArgs) string {
	conds := make([]string, 0, 8)
	if f.Email != "" {
		conds = append(conds, "email = "+args.add(domain.NormalizeEmail(f.Email)))
	}
	if f.Contact != "" {
		conds = append(conds, "contact = "+args.add(f.Contact))
	}
	if len(f.Statuses) > 0 {
		values := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			values = append(values, s.String())
		}
		conds = append(conds, "status = ANY("+args.add(values)+")")
	}
	if f.MeetingBooked != nil {
		conds = append(conds, "meeting_booked = "+args.add(*f.MeetingBooked))
	}
	if f.Reminder24hSent != nil {
		conds = append(conds, "reminder_24h_sent = "+args.add(*f.Reminder24hSent))
	}
	if f.Reminder1hSent != nil {
		conds = append(conds, "reminder_1h_sent = "+args.add(*f.Reminder1hSent))
	}
	if f.MeetingTimeFrom != nil {
		conds = append(conds, "meeting_time >= "+args.add(*f.MeetingTimeFrom))
	}
	if f.MeetingTimeTo != nil {
		conds = append(conds, "meeting_time <= "+args.add(*f.MeetingTimeTo))
	}
	if f.NoBookStage != nil {
		conds = append(conds, "no_book_reminder_stage = "+args.add(*f.NoBookStage))
	}
	if f.NoBookReminderAtOrBefore != nil {
		conds = append(conds, "no_book_reminder_time <= "+args.add(*f.NoBookReminderAtOrBefore))
	}
	if f.NoShowStage != nil {
		conds = append(conds, "no_show_reminder_stage = "+args.add(*f.NoShowStage))
	}
	if f.NoShowTimeAtOrBefore != nil {
		conds = append(conds, "no_show_time <= "+args.add(*f.NoShowTimeAtOrBefore))
	}
	if f.NoShowTimeBefore != nil {
		conds = append(conds, "no_show_time < "+args.add(*f.NoShowTimeBefore))
	}
	if len(f.Or) > 0 {
		alts := make([]string, 0, len(f.Or))
		for _, alt := range f.Or {
			alts = append(alts, "("+alt.where(args)+")")
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}
