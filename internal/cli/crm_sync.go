package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"leadsync_backend/internal/bootstrap"
)

// NewCRMSyncCommand creates the crm-sync command.
func NewCRMSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "crm-sync",
		Short: "Import CRM contacts into the lead store",
		Long: `Page through every CRM contact and insert or refresh the matching lead.

Stale CRM statuses never overwrite a newer local status.

Example:
  leadctl crm-sync
  leadctl crm-sync --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()

			cfg, log, err := rootOpts.environment()
			if err != nil {
				return err
			}
			if !cfg.IsHubSpotEnabled() {
				return NewExitError(ExitCommandError, "HUBSPOT_PRIVATE_TOKEN is not set")
			}
			rt, err := rootOpts.Build(ctx, cfg, log, bootstrap.Options{DryRun: rootOpts.DryRun})
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to initialize", err)
			}
			defer func() { _ = rt.Close() }()

			res, err := rt.Importer.Sync(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "crm import failed", err)
			}
			text := fmt.Sprintf("crm-sync: processed=%d inserted=%d updated=%d reinserted=%d skipped=%d missing_email=%d failed=%d",
				res.Processed, res.Inserted, res.Updated, res.Reinserted, res.Skipped, res.MissingEmail, res.Failed)
			if err := rootOpts.formatter(cmd).Success(res, text); err != nil {
				return err
			}
			if res.Failed > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d contact(s) failed", res.Failed))
			}
			return nil
		},
	}
}
