// Package bootstrap wires the lifecycle pipeline from configuration. It is
// shared by the scheduler process and the operator CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"leadsync_backend/internal/adapters/storage"
	"leadsync_backend/internal/calendar"
	"leadsync_backend/internal/crm"
	"leadsync_backend/internal/email"
	"leadsync_backend/internal/events"
	"leadsync_backend/internal/leads/ports"
	"leadsync_backend/internal/leads/repository"
	"leadsync_backend/internal/notify"
	"leadsync_backend/internal/reconciler"
	"leadsync_backend/internal/reminders"
	"leadsync_backend/internal/scheduler"
	"leadsync_backend/internal/sheets"
	"leadsync_backend/internal/whatsapp"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/db"
	"leadsync_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the wiring.
type Options struct {
	// DryRun keeps all state in memory and sends nothing: no email, no
	// WhatsApp, no CRM writes, no sheet writes.
	DryRun bool
	// Lock enables the cross-process tick lock on Redis.
	Lock bool
}

// Runtime holds the wired pipeline and the resources to release.
type Runtime struct {
	Pool        *pgxpool.Pool
	Store       repository.Store
	Transitions repository.TransitionLog
	Bus         *events.InMemoryBus
	CRM         crm.Client
	Importer    *crm.Importer
	Reconciler  *reconciler.Reconciler
	Reminders   *reminders.Scheduler
	Tracker     *sheets.Tracker
	Archiver    *storage.SnapshotArchiver
	Runner      *scheduler.Runner
	Clock       clock.Clock

	closers []func() error
}

// Build connects every configured integration. Missing optional
// integrations are disabled with a log line; broken credentials fail.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*Runtime, error) {
	rt := &Runtime{Clock: clock.Real{}}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close()
		}
	}()

	if err := rt.buildStore(ctx, cfg, opts); err != nil {
		return nil, err
	}

	rt.Bus = events.NewInMemoryBus(log)
	events.NewTransitionRecorder(rt.Transitions, log).Register(rt.Bus)
	if cfg.IsAMQPEnabled() && !opts.DryRun {
		forwarder, err := events.NewAMQPForwarder(cfg, log)
		if err != nil {
			return nil, err
		}
		forwarder.Register(rt.Bus)
		rt.closers = append(rt.closers, forwarder.Close)
	}

	var propagator ports.StatusPropagator = ports.NoopPropagator{}
	if hub := crm.NewHubSpotClient(cfg, log); hub != nil {
		rt.CRM = hub
		rt.Importer = crm.NewImporter(hub, rt.Store, rt.Transitions, rt.Clock, log)
		if !opts.DryRun {
			propagator = crm.NewPropagator(hub, log)
		}
	} else {
		log.Warn("hubspot not configured, CRM propagation disabled")
	}

	notifier, err := buildNotifier(cfg, log, opts)
	if err != nil {
		return nil, err
	}

	if !cfg.IsGoogleEnabled() {
		return nil, errors.New("google service account is required for the calendar")
	}
	source, err := calendar.NewGoogleSource(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	bookings := calendar.NewBookingReader(source, cfg.GetGoogleCalendarOwnerEmail(), cfg.GetCalendarLookahead(), rt.Clock, log)

	timeout := cfg.GetExternalCallTimeout()
	rt.Reconciler = reconciler.New(reconciler.Deps{
		Store:       rt.Store,
		Bookings:    bookings,
		CRM:         propagator,
		Notifier:    notifier,
		Bus:         rt.Bus,
		Clock:       rt.Clock,
		CallTimeout: timeout,
		Log:         log,
	})
	rt.Reminders = reminders.New(reminders.Deps{
		Store:       rt.Store,
		CRM:         propagator,
		Notifier:    notifier,
		Bus:         rt.Bus,
		Clock:       rt.Clock,
		CallTimeout: timeout,
		Log:         log,
	})

	if err := rt.buildTracker(ctx, cfg, notifier, log, opts); err != nil {
		return nil, err
	}

	runnerDeps := scheduler.RunnerDeps{
		Reconciler: rt.Reconciler,
		Reminders:  rt.Reminders,
		Clock:      rt.Clock,
		Log:        log,
	}
	if rt.Importer != nil {
		runnerDeps.Importer = rt.Importer
	}
	if rt.Tracker != nil {
		runnerDeps.Tracker = rt.Tracker
	}
	if opts.Lock && !opts.DryRun && cfg.GetRedisURL() != "" {
		client, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		runnerDeps.Locker = scheduler.NewRedisLock(client, cfg.GetTickLockTTL())
	}
	rt.Runner = scheduler.NewRunner(runnerDeps)

	ok = true
	return rt, nil
}

func (rt *Runtime) buildStore(ctx context.Context, cfg *config.Config, opts Options) error {
	if opts.DryRun {
		mem := repository.NewMemoryStore(rt.Clock)
		rt.Store, rt.Transitions = mem, mem
		return nil
	}
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
	repo := repository.New(pool, rt.Clock)
	rt.Store, rt.Transitions = repo, repo
	return nil
}

func buildNotifier(cfg *config.Config, log *logger.Logger, opts Options) (*notify.Dispatcher, error) {
	catalog, err := notify.LoadCatalog()
	if err != nil {
		return nil, err
	}

	sender := email.Sender(email.NoopSender{})
	var wa notify.WhatsAppSender
	if !opts.DryRun {
		sender = email.NewSender(cfg)
		if client := whatsapp.NewClient(cfg, log); client != nil {
			wa = client
		} else {
			log.Warn("whatsapp not configured, email only")
		}
	}
	return notify.NewDispatcher(cfg, catalog, sender, wa, log)
}

func (rt *Runtime) buildTracker(ctx context.Context, cfg *config.Config, notifier notify.Notifier, log *logger.Logger, opts Options) error {
	if opts.DryRun || cfg.GetSheetsSpreadsheetID() == "" {
		log.Info("sheet tracker disabled")
		return nil
	}
	sheet, err := sheets.NewGoogleSheet(ctx, cfg)
	if err != nil {
		return err
	}

	trackerOpts := sheets.TrackerOptions{
		Range:       cfg.GetSheetsRange(),
		CallTimeout: cfg.GetExternalCallTimeout(),
	}
	if cfg.IsMinIOEnabled() {
		svc, err := storage.NewMinIOService(cfg)
		if err != nil {
			return err
		}
		rt.Archiver = storage.NewSnapshotArchiver(svc, cfg.GetMinioBucketSheetSnapshots(), rt.Clock)
		if err := rt.Archiver.Init(ctx); err != nil {
			log.Warn("snapshot bucket unavailable, archiving may fail", "error", err)
		}
		trackerOpts.Archiver = rt.Archiver
	}
	rt.Tracker = sheets.NewTracker(sheet, notifier, rt.Clock, log, trackerOpts)
	return nil
}

// Close flushes pending events and releases resources in reverse order.
func (rt *Runtime) Close() error {
	if rt.Bus != nil {
		rt.Bus.Wait()
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
