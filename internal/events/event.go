// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"github.com/google/uuid"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/platform/events"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// AllEvents subscribes a handler to every event.
const AllEvents = events.AllEvents

// Transition sources.
const (
	SourceCalendar  = "calendar"
	SourceScheduler = "scheduler"
	SourceNoShow    = "noshow_detector"
	SourceWebhook   = "webhook"
)

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadStatusChanged is published after a conditional update moved a lead to a new status.
type LeadStatusChanged struct {
	BaseEvent
	EventID     uuid.UUID     `json:"eventId"`
	Email       string        `json:"email"`
	From        domain.Status `json:"from"`
	To          domain.Status `json:"to"`
	Source      string        `json:"source"`
	MeetingTime *time.Time    `json:"meetingTime,omitempty"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// NewLeadStatusChanged stamps a transition event.
func NewLeadStatusChanged(at time.Time, email string, from, to domain.Status, source string) LeadStatusChanged {
	return LeadStatusChanged{
		BaseEvent: NewBaseEventAt(at),
		EventID:   uuid.New(),
		Email:     domain.NormalizeEmail(email),
		From:      from,
		To:        to,
		Source:    source,
	}
}

// ReminderSent is published after a reminder latch was claimed and its notification attempted.
type ReminderSent struct {
	BaseEvent
	EventID   uuid.UUID `json:"eventId"`
	Email     string    `json:"email"`
	Kind      string    `json:"kind"`
	Delivered bool      `json:"delivered"`
}

func (e ReminderSent) EventName() string { return "leads.reminder.sent" }

// NewReminderSent stamps a reminder event.
func NewReminderSent(at time.Time, email, kind string, delivered bool) ReminderSent {
	return ReminderSent{
		BaseEvent: NewBaseEventAt(at),
		EventID:   uuid.New(),
		Email:     domain.NormalizeEmail(email),
		Kind:      kind,
		Delivered: delivered,
	}
}
