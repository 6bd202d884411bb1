package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"leadsync_backend/internal/bootstrap"
	"leadsync_backend/internal/scheduler"
)

// NewTickCommand creates the tick command.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one full synchronization tick",
		Long: `Run the CRM import, reconcile, no-show detection, reminder scans and the
sheet tracker once.

The tick takes the same Redis lock as the scheduler, so it is skipped while a
scheduled tick is running. With --dry-run the lead store lives in memory and
is filled by the import stage; no notification, CRM write or sheet write is made.

Example:
  leadctl tick
  leadctl tick --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTick(cmd, rootOpts)
		},
	}
}

func runTick(cmd *cobra.Command, opts *RootOptions) error {
	ctx, stop := commandContext(cmd)
	defer stop()

	cfg, log, err := opts.environment()
	if err != nil {
		return err
	}
	rt, err := opts.Build(ctx, cfg, log, bootstrap.Options{DryRun: opts.DryRun, Lock: true})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	defer func() { _ = rt.Close() }()

	out := opts.formatter(cmd)
	res, err := rt.Runner.Tick(ctx, scheduler.TriggerCLI)
	if errors.Is(err, scheduler.ErrTickInProgress) {
		_ = out.Error("TICK_BUSY", err.Error())
		return NewExitError(ExitFailure, "tick skipped")
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "tick failed", err)
	}

	if err := out.Success(newTickSummary(res), formatTick(res)); err != nil {
		return err
	}
	if res.FailedStages > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d stage(s) failed", res.FailedStages))
	}
	return nil
}

// TickSummary is the JSON shape of a tick result.
type TickSummary struct {
	Trigger      string `json:"trigger"`
	Imported     int    `json:"imported"`
	CRMUpdated   int    `json:"crmUpdated"`
	Bookings     int    `json:"bookings"`
	Booked       int    `json:"booked"`
	NotBooked    int    `json:"notBooked"`
	NoShows      int    `json:"noShows"`
	Reminder24h  int    `json:"reminder24h"`
	Reminder1h   int    `json:"reminder1h"`
	NoBook       int    `json:"noBook"`
	NoShowFinal  int    `json:"noShowFinal"`
	SheetRows    int    `json:"sheetRows"`
	SheetSkipped bool   `json:"sheetSkipped"`
	FailedStages int    `json:"failedStages"`
	DurationMs   int64  `json:"durationMs"`
}

func newTickSummary(res scheduler.TickResult) TickSummary {
	return TickSummary{
		Trigger:      res.Trigger,
		Imported:     res.Import.Inserted + res.Import.Reinserted,
		CRMUpdated:   res.Import.Updated,
		Bookings:     len(res.Reconcile.Bookings),
		Booked:       res.Reconcile.Booked,
		NotBooked:    res.Reconcile.NotBooked,
		NoShows:      res.NoShows.NoShowFirst,
		Reminder24h:  res.Scans.Reminder24h,
		Reminder1h:   res.Scans.Reminder1h,
		NoBook:       res.Scans.NoBook,
		NoShowFinal:  res.Scans.NoShowFinal,
		SheetRows:    res.Sheet.Rows,
		SheetSkipped: res.SheetSkipped,
		FailedStages: res.FailedStages,
		DurationMs:   res.Duration.Milliseconds(),
	}
}

func formatTick(res scheduler.TickResult) string {
	s := newTickSummary(res)
	sheet := fmt.Sprintf("%d rows", s.SheetRows)
	if s.SheetSkipped {
		sheet = "skipped"
	}
	return fmt.Sprintf(
		"tick (%s): imported=%d crm_updated=%d bookings=%d booked=%d not_booked=%d no_shows=%d reminders[24h=%d 1h=%d no_book=%d no_show_final=%d] sheet=%s failed_stages=%d",
		s.Trigger, s.Imported, s.CRMUpdated, s.Bookings, s.Booked, s.NotBooked, s.NoShows,
		s.Reminder24h, s.Reminder1h, s.NoBook, s.NoShowFinal, sheet, s.FailedStages,
	)
}

// commandContext cancels on SIGINT or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
