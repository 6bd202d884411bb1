package sheets

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/notify"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
)

type memorySheet struct {
	rows     [][]string
	writes   int
	writeErr error
}

func (s *memorySheet) ReadRange(_ context.Context, _ string) ([][]string, error) {
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (s *memorySheet) WriteRange(_ context.Context, _ string, rows [][]string) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	s.rows = rows
	return nil
}

type recordingNotifier struct {
	sent []notify.Kind
}

func (n *recordingNotifier) Notify(_ context.Context, kind notify.Kind, _ notify.Recipient) error {
	n.sent = append(n.sent, kind)
	return nil
}

type memoryArchiver struct {
	snapshots [][][]string
}

func (a *memoryArchiver) Archive(_ context.Context, rows [][]string) (string, error) {
	a.snapshots = append(a.snapshots, rows)
	return "snapshot", nil
}

func TestTrackerScenarioReconnectThenBooked(t *testing.T) {
	sheet := &memorySheet{rows: [][]string{header, {"Ann", "ann@example.com", ""}}}
	notifier := &recordingNotifier{}
	archiver := &memoryArchiver{}
	clk := clock.NewFixed(trackerNow)
	tracker := NewTracker(sheet, notifier, clk, logger.New("test"), TrackerOptions{Archiver: archiver, CallTimeout: time.Second})

	result, err := tracker.Run(context.Background(), domain.Bookings{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if sheet.rows[1][colStatus] != StatusReconnect1 || sheet.rows[1][colReconnectTime] != formatTime(trackerNow) {
		t.Fatalf("unexpected row after first tick: %v", sheet.rows[1])
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != notify.KindNoBookFirst {
		t.Fatalf("expected one reconnect reminder, got %v", notifier.sent)
	}
	if result.Changed != 1 || result.Dispatched != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	clk.Advance(time.Hour)
	bookings := bookingsFor("ann@example.com", trackerNow.Add(48*time.Hour))
	if _, err := tracker.Run(context.Background(), bookings); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sheet.rows[1][colStatus] != StatusMeetingBooked {
		t.Fatalf("expected meeting_booked, got %v", sheet.rows[1])
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("booking in the sheet sends nothing, got %v", notifier.sent)
	}
	if len(archiver.snapshots) != 2 || archiver.snapshots[0][1][colStatus] != "" {
		t.Fatalf("expected the pre-write snapshot to be archived, got %v", archiver.snapshots)
	}
}

func TestTrackerWriteFailureDropsNotifications(t *testing.T) {
	sheet := &memorySheet{
		rows:     [][]string{header, {"Ann", "ann@example.com", ""}},
		writeErr: errors.New("quota"),
	}
	notifier := &recordingNotifier{}
	tracker := NewTracker(sheet, notifier, clock.NewFixed(trackerNow), logger.New("test"), TrackerOptions{})

	if _, err := tracker.Run(context.Background(), domain.Bookings{}); err == nil {
		t.Fatalf("expected write error")
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("notifications must not be sent when the write fails")
	}
}

func TestTrackerEmptySheet(t *testing.T) {
	sheet := &memorySheet{rows: [][]string{header}}
	tracker := NewTracker(sheet, &recordingNotifier{}, clock.NewFixed(trackerNow), logger.New("test"), TrackerOptions{})

	if _, err := tracker.Run(context.Background(), domain.Bookings{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sheet.writes != 0 {
		t.Fatalf("header-only sheet should not be rewritten")
	}
}
