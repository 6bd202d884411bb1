package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadsync_backend/internal/adapters/storage"
	"leadsync_backend/internal/sheets"
	"leadsync_backend/platform/clock"
	"leadsync_backend/platform/config"
)

// NewSnapshotCommand creates the sheet-snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheet-snapshot",
		Short: "Archive or fetch tracking sheet snapshots",
		Long: `Sheet snapshots are CSV copies of the tracking range kept in object storage.

Example:
  leadctl sheet-snapshot archive
  leadctl sheet-snapshot fetch
  leadctl sheet-snapshot fetch snapshots/2026/10/19/093000_1a2b3c4d.csv`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "archive",
		Short:         "Copy the current tracking range into object storage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			cfg, _, err := rootOpts.environment()
			if err != nil {
				return err
			}
			archiver, err := newArchiver(cfg)
			if err != nil {
				return err
			}
			sheet, err := sheets.NewGoogleSheet(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open sheet", err)
			}
			rows, err := sheet.ReadRange(ctx, cfg.GetSheetsRange())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read sheet", err)
			}
			if err := archiver.Init(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to prepare bucket", err)
			}
			key, err := archiver.Archive(ctx, rows)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to archive snapshot", err)
			}
			return rootOpts.formatter(cmd).Success(
				map[string]any{"key": key, "rows": len(rows)},
				fmt.Sprintf("archived %d rows to %s", len(rows), key),
			)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "fetch [key]",
		Short:         "Print a snapshot as CSV, the latest when no key is given",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			cfg, _, err := rootOpts.environment()
			if err != nil {
				return err
			}
			archiver, err := newArchiver(cfg)
			if err != nil {
				return err
			}
			var key string
			if len(args) == 1 {
				key = args[0]
			}
			key, rows, err := archiver.Fetch(ctx, key)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to fetch snapshot", err)
			}

			out := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return out.Success(map[string]any{"key": key, "rows": rows}, "")
			}
			out.VerboseLog("snapshot %s", key)
			data, err := storage.EncodeRows(rows)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}

func newArchiver(cfg *config.Config) (*storage.SnapshotArchiver, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, NewExitError(ExitCommandError, "MINIO_ENDPOINT is not set")
	}
	svc, err := storage.NewMinIOService(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to connect to object storage", err)
	}
	return storage.NewSnapshotArchiver(svc, cfg.GetMinioBucketSheetSnapshots(), clock.Real{}), nil
}
