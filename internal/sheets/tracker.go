package sheets

import (
	"context"
	"time"

	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/notify"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
)

// Archiver keeps a copy of the range before it is overwritten.
type Archiver interface {
	Archive(ctx context.Context, rows [][]string) (string, error)
}

// Result summarizes one tracker pass.
type Result struct {
	Rows       int
	Changed    int
	Dispatched int
	Failed     int
}

// Tracker runs the row state machine over the tracking range.
type Tracker struct {
	sheet    Sheet
	rng      string
	archiver Archiver
	notifier notify.Notifier
	clock    clock.Clock
	timeout  time.Duration
	log      *logger.Logger
}

// TrackerOptions configures a Tracker. Archiver may be nil.
type TrackerOptions struct {
	Range       string
	Archiver    Archiver
	CallTimeout time.Duration
}

// NewTracker wires a tracker over sheet.
func NewTracker(sheet Sheet, notifier notify.Notifier, clk clock.Clock, log *logger.Logger, opts TrackerOptions) *Tracker {
	rng := opts.Range
	if rng == "" {
		rng = "Sheet1!A1:G"
	}
	return &Tracker{
		sheet:    sheet,
		rng:      rng,
		archiver: opts.Archiver,
		notifier: notifier,
		clock:    clk,
		timeout:  opts.CallTimeout,
		log:      log,
	}
}

// Run reads the range, applies Transform, archives the previous snapshot,
// writes the full range back and only then sends the queued notifications.
// A read or write failure returns the error and sends nothing.
func (t *Tracker) Run(ctx context.Context, bookings domain.Bookings) (Result, error) {
	var result Result

	readCtx, cancel := t.callContext(ctx)
	rows, err := t.sheet.ReadRange(readCtx, t.rng)
	cancel()
	if err != nil {
		metrics.RecordIntegrationError("sheets")
		return result, err
	}
	if len(rows) <= 1 {
		t.log.Debug("tracking sheet has no data rows", "range", t.rng)
		return result, nil
	}
	result.Rows = len(rows) - 1

	updated, dispatches := Transform(rows, bookings, t.clock.Now())
	result.Changed = countChanged(rows, updated)

	if t.archiver != nil {
		archiveCtx, cancel := t.callContext(ctx)
		key, err := t.archiver.Archive(archiveCtx, rows)
		cancel()
		if err != nil {
			t.log.Warn("sheet snapshot archive failed", "error", err)
		} else {
			t.log.Debug("sheet snapshot archived", "key", key)
		}
	}

	writeCtx, cancel := t.callContext(ctx)
	err = t.sheet.WriteRange(writeCtx, t.rng, updated)
	cancel()
	if err != nil {
		metrics.RecordIntegrationError("sheets")
		t.log.Error("sheet write failed, dropping queued notifications", "range", t.rng, "queued", len(dispatches), "error", err)
		return result, err
	}

	for _, d := range dispatches {
		sendCtx, cancel := t.callContext(ctx)
		err := t.notifier.Notify(sendCtx, d.Kind, d.Recipient)
		cancel()
		if err != nil {
			result.Failed++
			continue
		}
		result.Dispatched++
	}

	t.log.Info("sheet tracker completed",
		"rows", result.Rows,
		"changed", result.Changed,
		"dispatched", result.Dispatched,
		"failed", result.Failed,
	)
	return result, nil
}

func (t *Tracker) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.timeout)
}

func countChanged(before, after [][]string) int {
	changed := 0
	for i := 1; i < len(after); i++ {
		if i >= len(before) || !sameRow(before[i], after[i]) {
			changed++
		}
	}
	return changed
}

func sameRow(a, b []string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y string
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return false
		}
	}
	return true
}
