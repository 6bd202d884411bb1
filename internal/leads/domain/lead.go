package domain

import (
	"strings"
	"time"
)

// Lead is one contact in the funnel, keyed by normalized email.
type Lead struct {
	Email     string
	Name      string
	Contact   string
	CRMID     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Meeting   MeetingDetails
}

// MeetingDetails carries the funnel status, the booking facts and the reminder latches.
type MeetingDetails struct {
	Status          Status
	MeetingBooked   bool
	MeetingTime     *time.Time
	MeetingLink     string
	CalendarEventID string

	Reminder24hSent bool
	Reminder1hSent  bool

	NoBookReminderStage int
	NoBookReminderTime  *time.Time

	NoShowReminderStage int
	NoShowTime          *time.Time
}

// Reminder stage bounds shared by the not-booked and no-show families.
const (
	StageNone  = 0
	StageFirst = 1
	StageFinal = 2
)

// NormalizeEmail lower-cases and trims an address so it can serve as the natural key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NewLead builds a fresh lead entering the funnel at new_lead.
// anchor seeds the not-booked reminder clock.
func NewLead(email, name, contact string, anchor time.Time) Lead {
	a := anchor.UTC()
	return Lead{
		Email:     NormalizeEmail(email),
		Name:      strings.TrimSpace(name),
		Contact:   strings.TrimSpace(contact),
		CreatedAt: a,
		UpdatedAt: a,
		Meeting: MeetingDetails{
			Status:             StatusNewLead,
			NoBookReminderTime: &a,
		},
	}
}

// FirstName returns the first word of the lead's name, used as a greeting.
func (l Lead) FirstName() string {
	fields := strings.Fields(l.Name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// Booking is one upcoming calendar meeting for a guest.
type Booking struct {
	Email       string
	MeetingTime time.Time
	MeetingLink string
	EventID     string
}

// Bookings indexes upcoming meetings by normalized guest email.
type Bookings map[string]Booking

// Lookup returns the booking for email, if any.
func (b Bookings) Lookup(email string) (Booking, bool) {
	booking, ok := b[NormalizeEmail(email)]
	return booking, ok
}

// Add keeps the earliest meeting per guest.
func (b Bookings) Add(booking Booking) {
	key := NormalizeEmail(booking.Email)
	booking.Email = key
	if existing, ok := b[key]; ok && !booking.MeetingTime.Before(existing.MeetingTime) {
		return
	}
	b[key] = booking
}
