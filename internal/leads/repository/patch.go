package repository

import (
	"strings"
	"time"

	"leadsync_backend/internal/leads/domain"
)

// TimeUpdate sets or clears a nullable timestamp. The zero value leaves it untouched.
type TimeUpdate struct {
	Set bool
	At  *time.Time
}

// SetTime stores t.
func SetTime(t time.Time) TimeUpdate {
	u := t.UTC()
	return TimeUpdate{Set: true, At: &u}
}

// ClearTime stores NULL.
func ClearTime() TimeUpdate {
	return TimeUpdate{Set: true}
}

// Patch lists the fields a conditional update writes. Nil fields are left unchanged.
type Patch struct {
	Name    *string
	Contact *string
	CRMID   *string

	Status          *domain.Status
	MeetingBooked   *bool
	MeetingTime     TimeUpdate
	MeetingLink     *string
	CalendarEventID *string

	Reminder24hSent *bool
	Reminder1hSent  *bool

	NoBookReminderStage *int
	NoBookReminderTime  TimeUpdate

	NoShowReminderStage *int
	NoShowTime          TimeUpdate
}

// Empty reports whether the patch writes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Contact == nil && p.CRMID == nil &&
		p.Status == nil && p.MeetingBooked == nil && !p.MeetingTime.Set &&
		p.MeetingLink == nil && p.CalendarEventID == nil &&
		p.Reminder24hSent == nil && p.Reminder1hSent == nil &&
		p.NoBookReminderStage == nil && !p.NoBookReminderTime.Set &&
		p.NoShowReminderStage == nil && !p.NoShowTime.Set
}

// Apply writes the patch onto l and stamps UpdatedAt.
func (p Patch) Apply(l *domain.Lead, now time.Time) {
	m := &l.Meeting
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Contact != nil {
		l.Contact = *p.Contact
	}
	if p.CRMID != nil {
		l.CRMID = *p.CRMID
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.MeetingBooked != nil {
		m.MeetingBooked = *p.MeetingBooked
	}
	applyTime(&m.MeetingTime, p.MeetingTime)
	if p.MeetingLink != nil {
		m.MeetingLink = *p.MeetingLink
	}
	if p.CalendarEventID != nil {
		m.CalendarEventID = *p.CalendarEventID
	}
	if p.Reminder24hSent != nil {
		m.Reminder24hSent = *p.Reminder24hSent
	}
	if p.Reminder1hSent != nil {
		m.Reminder1hSent = *p.Reminder1hSent
	}
	if p.NoBookReminderStage != nil {
		m.NoBookReminderStage = *p.NoBookReminderStage
	}
	applyTime(&m.NoBookReminderTime, p.NoBookReminderTime)
	if p.NoShowReminderStage != nil {
		m.NoShowReminderStage = *p.NoShowReminderStage
	}
	applyTime(&m.NoShowTime, p.NoShowTime)
	l.UpdatedAt = now.UTC()
}

func applyTime(dst **time.Time, u TimeUpdate) {
	if !u.Set {
		return
	}
	if u.At == nil {
		*dst = nil
		return
	}
	t := *u.At
	*dst = &t
}

// assignments renders the SET clause, always stamping updated_at.
func (p Patch) assignments(args *sqlArgs, now time.Time) string {
	sets := make([]string, 0, 16)
	if p.Name != nil {
		sets = append(sets, "name = "+args.add(*p.Name))
	}
	if p.Contact != nil {
		sets = append(sets, "contact = "+args.add(*p.Contact))
	}
	if p.CRMID != nil {
		sets = append(sets, "crm_id = "+args.add(*p.CRMID))
	}
	if p.Status != nil {
		sets = append(sets, "status = "+args.add(p.Status.String()))
	}
	if p.MeetingBooked != nil {
		sets = append(sets, "meeting_booked = "+args.add(*p.MeetingBooked))
	}
	if p.MeetingTime.Set {
		sets = append(sets, "meeting_time = "+args.add(p.MeetingTime.At))
	}
	if p.MeetingLink != nil {
		sets = append(sets, "meeting_link = "+args.add(*p.MeetingLink))
	}
	if p.CalendarEventID != nil {
		sets = append(sets, "calendar_event_id = "+args.add(*p.CalendarEventID))
	}
	if p.Reminder24hSent != nil {
		sets = append(sets, "reminder_24h_sent = "+args.add(*p.Reminder24hSent))
	}
	if p.Reminder1hSent != nil {
		sets = append(sets, "reminder_1h_sent = "+args.add(*p.Reminder1hSent))
	}
	if p.NoBookReminderStage != nil {
		sets = append(sets, "no_book_reminder_stage = "+args.add(*p.NoBookReminderStage))
	}
	if p.NoBookReminderTime.Set {
		sets = append(sets, "no_book_reminder_time = "+args.add(p.NoBookReminderTime.At))
	}
	if p.NoShowReminderStage != nil {
		sets = append(sets, "no_show_reminder_stage = "+args.add(*p.NoShowReminderStage))
	}
	if p.NoShowTime.Set {
		sets = append(sets, "no_show_time = "+args.add(p.NoShowTime.At))
	}
	sets = append(sets, "updated_at = "+args.add(now.UTC()))
	return strings.Join(sets, ", ")
}
