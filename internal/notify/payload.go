package notify

import (
	"time"

	"leadsync_backend/internal/leads/domain"
)

// Recipient is who a notification goes to and the meeting it talks about.
type Recipient struct {
	Email       string
	Name        string
	Contact     string
	MeetingTime *time.Time
	MeetingLink string
}

// RecipientFromLead copies the addressable fields of a lead.
func RecipientFromLead(l domain.Lead) Recipient {
	return Recipient{
		Email:       l.Email,
		Name:        l.Name,
		Contact:     l.Contact,
		MeetingTime: l.Meeting.MeetingTime,
		MeetingLink: l.Meeting.MeetingLink,
	}
}

// Payload is the data every catalog template is rendered with.
type Payload struct {
	Name           string
	Email          string
	Date           string
	Time           string
	MeetingURL     string
	RescheduleLink string
}

var payloadFields = map[string]func(Payload) string{
	"name":            func(p Payload) string { return p.Name },
	"email":           func(p Payload) string { return p.Email },
	"date":            func(p Payload) string { return p.Date },
	"time":            func(p Payload) string { return p.Time },
	"meeting_url":     func(p Payload) string { return p.MeetingURL },
	"reschedule_link": func(p Payload) string { return p.RescheduleLink },
}

// BuildPayload formats r for display in loc. The reschedule link falls back to the meeting link.
func BuildPayload(r Recipient, loc *time.Location, rescheduleLink string) Payload {
	name := r.Name
	if name == "" {
		name = "there"
	}
	p := Payload{
		Name:           name,
		Email:          r.Email,
		MeetingURL:     r.MeetingLink,
		RescheduleLink: rescheduleLink,
	}
	if p.RescheduleLink == "" {
		p.RescheduleLink = r.MeetingLink
	}
	if r.MeetingTime != nil {
		t := r.MeetingTime.In(loc)
		p.Date = t.Format("Monday, January 2, 2006")
		p.Time = t.Format("15:04 MST")
	}
	return p
}
