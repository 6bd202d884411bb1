package sheets

import (
	"strings"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/notify"
)

// Column layout of the tracking range. Row 0 is a header.
const (
	colName = iota
	colEmail
	colStatus
	colContact
	colMeetingTime
	colReconnectTime
	colNoShowTime
	columnCount
)

// Row status vocabulary. It is independent of domain.Status.
const (
	StatusNew                 = "new"
	StatusReconnect1          = "reconnect_SMS_message_1"
	StatusReconnect2          = "reconnect_SMS_message_2"
	StatusMeetingBooked       = "meeting_booked"
	StatusReminder24hSent     = "meeting_booked_reminder_24hour_message_sent"
	StatusReminder1hSent      = "meeting_booked_reminder_1hour_message_sent"
	StatusNoShow              = "noshow"
	StatusNoShowFinalReminder = "no_show_final_reminder_sent"
)

const (
	reconnectDelay   = 25 * time.Hour
	reminder24hAhead = 25 * time.Hour
	reminder1hAhead  = time.Hour
	noShowDelay      = 24 * time.Hour
)

// Dispatch is a notification queued by Transform, sent only after the write-back succeeds.
type Dispatch struct {
	Row       int
	Kind      notify.Kind
	Recipient notify.Recipient
}

// Transform computes the next state of every data row. It does not modify rows.
func Transform(rows [][]string, bookings domain.Bookings, now time.Time) ([][]string, []Dispatch) {
	now = now.UTC()
	out := make([][]string, len(rows))
	var dispatches []Dispatch

	for i, src := range rows {
		if i == 0 {
			out[i] = append([]string(nil), src...)
			continue
		}
		row := padRow(src)
		out[i] = row

		email := domain.NormalizeEmail(row[colEmail])
		if email == "" {
			continue
		}
		booking, booked := bookings.Lookup(email)
		queue := func(kind notify.Kind) {
			dispatches = append(dispatches, Dispatch{Row: i, Kind: kind, Recipient: recipient(row, email, booking, booked)})
		}

		switch status := strings.TrimSpace(row[colStatus]); status {
		case "", StatusNew:
			if booked {
				markBooked(row, booking)
				continue
			}
			row[colStatus] = StatusReconnect1
			row[colReconnectTime] = formatTime(now)
			queue(notify.KindNoBookFirst)

		case StatusReconnect1:
			if booked {
				markBooked(row, booking)
				row[colReconnectTime] = ""
				continue
			}
			if since, ok := elapsed(row[colReconnectTime], now); ok && since >= reconnectDelay {
				row[colStatus] = StatusReconnect2
				queue(notify.KindNoBookFinal)
			}

		case StatusReconnect2:
			if booked {
				markBooked(row, booking)
				row[colReconnectTime] = ""
			}

		case StatusMeetingBooked, StatusReminder24hSent:
			meeting, ok := parseTime(row[colMeetingTime])
			if !ok {
				continue
			}
			until := meeting.Sub(now)
			switch {
			case status == StatusMeetingBooked && until > reminder1hAhead && until <= reminder24hAhead:
				row[colStatus] = StatusReminder24hSent
				queue(notify.KindReminder24h)
			case until > 0 && until <= reminder1hAhead:
				row[colStatus] = StatusReminder1hSent
				queue(notify.KindReminder1h)
			}

		case StatusNoShow:
			switch {
			case booked:
				markBooked(row, booking)
				row[colNoShowTime] = ""
			case strings.TrimSpace(row[colNoShowTime]) == "":
				row[colNoShowTime] = formatTime(now)
			default:
				if since, ok := elapsed(row[colNoShowTime], now); ok && since >= noShowDelay {
					row[colStatus] = StatusNoShowFinalReminder
					queue(notify.KindNoShowFinal)
				}
			}
		}
	}
	return out, dispatches
}

func padRow(src []string) []string {
	n := columnCount
	if len(src) > n {
		n = len(src)
	}
	row := make([]string, n)
	copy(row, src)
	return row
}

func markBooked(row []string, b domain.Booking) {
	row[colStatus] = StatusMeetingBooked
	row[colMeetingTime] = formatTime(b.MeetingTime)
}

func recipient(row []string, email string, b domain.Booking, booked bool) notify.Recipient {
	r := notify.Recipient{
		Email:   email,
		Name:    strings.TrimSpace(row[colName]),
		Contact: strings.TrimSpace(row[colContact]),
	}
	if meeting, ok := parseTime(row[colMeetingTime]); ok {
		r.MeetingTime = &meeting
	}
	if booked {
		r.MeetingLink = b.MeetingLink
	}
	return r
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func elapsed(value string, now time.Time) (time.Duration, bool) {
	t, ok := parseTime(value)
	if !ok {
		return 0, false
	}
	return now.Sub(t), true
}
