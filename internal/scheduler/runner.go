package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"leadsync_backend/internal/crm"
	"leadsync_backend/internal/leads/domain"
	"leadsync_backend/internal/reconciler"
	"leadsync_backend/internal/reminders"
	"leadsync_backend/internal/sheets"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/logger"
	"leadsync_backend/platform/metrics"
)

// Tick triggers.
const (
	TriggerTicker = "ticker"
	TriggerTask   = "task"
	TriggerAdmin  = "admin"
	TriggerCLI    = "cli"
)

// ErrTickInProgress is returned when another tick holds the guard or the lock.
var ErrTickInProgress = errors.New("tick already in progress")

// CRMImporter pulls CRM contacts into the store before anything reads it.
type CRMImporter interface {
	Sync(ctx context.Context) (crm.ImportResult, error)
}

// BookingReconciler reads the calendar and applies bookings.
type BookingReconciler interface {
	ReconcileBookings(ctx context.Context) (reconciler.Result, error)
}

// ReminderRunner runs the no-show detector and the reminder scans.
type ReminderRunner interface {
	DetectNoShows(ctx context.Context) reminders.Result
	RunScans(ctx context.Context) reminders.Result
}

// SheetTracker mirrors the bookings into the spreadsheet.
type SheetTracker interface {
	Run(ctx context.Context, bookings domain.Bookings) (sheets.Result, error)
}

// TickResult summarizes one tick.
type TickResult struct {
	Trigger      string
	Import       crm.ImportResult
	Reconcile    reconciler.Result
	NoShows      reminders.Result
	Scans        reminders.Result
	Sheet        sheets.Result
	SheetSkipped bool
	FailedStages int
	Duration     time.Duration
}

// Runner executes ticks one at a time. A nil importer disables the CRM pull,
// a nil tracker disables the sheet stage and a nil locker limits the guard to
// this process.
type Runner struct {
	importer   CRMImporter
	reconciler BookingReconciler
	reminders  ReminderRunner
	tracker    SheetTracker
	locker     Locker
	clock      clock.Clock
	log        *logger.Logger
	busy       atomic.Bool
}

// RunnerDeps groups the stages of a tick.
type RunnerDeps struct {
	Importer   CRMImporter
	Reconciler BookingReconciler
	Reminders  ReminderRunner
	Tracker    SheetTracker
	Locker     Locker
	Clock      clock.Clock
	Log        *logger.Logger
}

func NewRunner(d RunnerDeps) *Runner {
	return &Runner{
		importer:   d.Importer,
		reconciler: d.Reconciler,
		reminders:  d.Reminders,
		tracker:    d.Tracker,
		locker:     d.Locker,
		clock:      d.Clock,
		log:        d.Log,
	}
}

// Tick runs the CRM import, reconcile, no-show detection, reminder scans and
// the sheet tracker in order. Stage errors are logged and counted; the tick itself only
// fails when it could not start.
func (r *Runner) Tick(ctx context.Context, trigger string) (TickResult, error) {
	if !r.busy.CompareAndSwap(false, true) {
		metrics.ObserveTick(trigger, "skipped", 0)
		return TickResult{Trigger: trigger}, ErrTickInProgress
	}
	defer r.busy.Store(false)

	if r.locker != nil {
		unlock, ok, err := r.locker.TryLock(ctx)
		if err != nil {
			r.log.Warn("tick lock unavailable", "trigger", trigger, "error", err)
			metrics.ObserveTick(trigger, "skipped", 0)
			return TickResult{Trigger: trigger}, err
		}
		if !ok {
			r.log.Debug("tick skipped, lock held elsewhere", "trigger", trigger)
			metrics.ObserveTick(trigger, "skipped", 0)
			return TickResult{Trigger: trigger}, ErrTickInProgress
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	start := r.clock.Now()
	res := r.run(ctx, trigger)
	res.Duration = r.clock.Now().Sub(start)

	outcome := "ok"
	if res.FailedStages > 0 {
		outcome = "degraded"
	}
	metrics.ObserveTick(trigger, outcome, res.Duration)
	r.log.TickCompleted(trigger, float64(res.Duration.Milliseconds()), res.FailedStages)
	return res, nil
}

func (r *Runner) run(ctx context.Context, trigger string) TickResult {
	res := TickResult{Trigger: trigger}

	if r.importer != nil {
		imported, err := r.importer.Sync(ctx)
		res.Import = imported
		if err != nil {
			r.log.Warn("crm import stage failed", "error", err)
			res.FailedStages++
		}
	}

	rec, err := r.reconciler.ReconcileBookings(ctx)
	res.Reconcile = rec
	if err != nil {
		r.log.Warn("reconcile stage failed", "error", err)
		res.FailedStages++
	}

	res.NoShows = r.reminders.DetectNoShows(ctx)
	if res.NoShows.Failed > 0 {
		res.FailedStages++
	}

	res.Scans = r.reminders.RunScans(ctx)
	if res.Scans.Failed > 0 {
		res.FailedStages++
	}

	switch {
	case r.tracker == nil:
		res.SheetSkipped = true
	case rec.CalendarFailed:
		r.log.Warn("sheet tracker skipped, calendar unavailable")
		res.SheetSkipped = true
	default:
		sheet, err := r.tracker.Run(ctx, rec.Bookings)
		res.Sheet = sheet
		if err != nil {
			r.log.Warn("sheet tracker failed", "error", err)
			res.FailedStages++
		}
	}

	return res
}
