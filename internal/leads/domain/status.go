// Package domain provides core business rules for the lead lifecycle.
package domain

import (
	"fmt"
	"strings"
)

// Status is the funnel status of a lead. It is the master state every
// reconciliation and reminder rule keys off.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusNewLead
	StatusNotBooked
	StatusNotBookedFirstReminderSent
	StatusNotBookedFinalReminderSent
	StatusMeetingBooked
	StatusNoShow
	StatusNoShowFinalReminderSent
)

// storedValues is the persisted representation of each status.
var storedValues = map[Status]string{
	StatusNewLead:                    "new_lead",
	StatusNotBooked:                  "not_booked",
	StatusNotBookedFirstReminderSent: "not_booked_first_reminder_sent",
	StatusNotBookedFinalReminderSent: "not_booked_final_reminder_sent",
	StatusMeetingBooked:              "meeting_booked",
	StatusNoShow:                     "noshow",
	StatusNoShowFinalReminderSent:    "no_show_final_reminder_sent",
}

// crmLabels maps each status to the CRM relationship_status property value.
var crmLabels = map[Status]string{
	StatusNewLead:                    "new_lead",
	StatusNotBooked:                  "not_booked",
	StatusNotBookedFirstReminderSent: "not_booked_first_reminder_sent",
	StatusNotBookedFinalReminderSent: "not_booked_final_reminder_sent",
	StatusMeetingBooked:              "meeting_booked",
	StatusNoShow:                     "noshow",
	StatusNoShowFinalReminderSent:    "no_show_final_reminder_sent",
}

var (
	statusByStored   = invert(storedValues)
	statusByCRMLabel = invert(crmLabels)
)

func invert(m map[Status]string) map[string]Status {
	out := make(map[string]Status, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// String returns the persisted value, or "unknown".
func (s Status) String() string {
	if v, ok := storedValues[s]; ok {
		return v
	}
	return "unknown"
}

// CRMLabel returns the label written to the CRM for this status.
func (s Status) CRMLabel() string {
	return crmLabels[s]
}

// Valid reports whether s is one of the funnel statuses.
func (s Status) Valid() bool {
	_, ok := storedValues[s]
	return ok
}

// ParseStatus reads a persisted status value.
func ParseStatus(value string) (Status, error) {
	if s, ok := statusByStored[value]; ok {
		return s, nil
	}
	return StatusUnknown, fmt.Errorf("unknown lead status %q", value)
}

// ParseCRMLabel reads a CRM relationship_status value. An empty label means a
// contact the CRM has not classified yet, which is a new lead.
func ParseCRMLabel(label string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if normalized == "" {
		return StatusNewLead, nil
	}
	if s, ok := statusByCRMLabel[normalized]; ok {
		return s, nil
	}
	return StatusUnknown, fmt.Errorf("unknown CRM status label %q", label)
}

// AllStatuses lists the funnel statuses in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusNewLead,
		StatusNotBooked,
		StatusNotBookedFirstReminderSent,
		StatusNotBookedFinalReminderSent,
		StatusMeetingBooked,
		StatusNoShow,
		StatusNoShowFinalReminderSent,
	}
}

// BookableStatuses may always transition to meeting_booked when a calendar event is found.
func BookableStatuses() []Status {
	return []Status{
		StatusNewLead,
		StatusNotBooked,
		StatusNotBookedFirstReminderSent,
		StatusNotBookedFinalReminderSent,
	}
}

// NoShowStatuses may transition to meeting_booked only for a meeting after the recorded no-show.
func NoShowStatuses() []Status {
	return []Status{StatusNoShow, StatusNoShowFinalReminderSent}
}

// NoBookFollowUpStatuses are eligible for the not-booked reminder stages.
func NoBookFollowUpStatuses() []Status {
	return []Status{StatusNotBooked, StatusNotBookedFirstReminderSent}
}

// MarshalText encodes the persisted value, so events and JSON carry labels.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a persisted value.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
