// Package notify renders lead notifications from a fixed catalog and sends them over email and WhatsApp.
package notify

import "fmt"

// Kind names one entry of the notification catalog.
type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindMeetingNotBooked Kind = "meeting_not_booked"
	KindReminder24h      Kind = "reminder_24h"
	KindReminder1h       Kind = "reminder_1h"
	KindNoBookFirst      Kind = "no_book_first"
	KindNoBookFinal      Kind = "no_book_final"
	KindNoShowFirst      Kind = "no_show_first"
	KindNoShowFinal      Kind = "no_show_final"
)

// AllKinds lists every catalog entry.
func AllKinds() []Kind {
	return []Kind{
		KindBookingConfirmed,
		KindMeetingNotBooked,
		KindReminder24h,
		KindReminder1h,
		KindNoBookFirst,
		KindNoBookFinal,
		KindNoShowFirst,
		KindNoShowFinal,
	}
}

// NoBookKind maps a not-booked follow-up stage (1 or 2) to its notification.
func NoBookKind(stage int) (Kind, error) {
	switch stage {
	case 1:
		return KindNoBookFirst, nil
	case 2:
		return KindNoBookFinal, nil
	}
	return "", fmt.Errorf("no not-booked notification for stage %d", stage)
}
