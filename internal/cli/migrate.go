package cli

import (
	"github.com/spf13/cobra"

	"leadsync_backend/platform/db"
)

// NewMigrateCommand creates the migrate command with its up and status subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "up",
		Short:         "Apply pending migrations",
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
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to connect to database", err)
			}
			defer pool.Close()

			if err := db.RunMigrations(ctx, pool); err != nil {
				return WrapExitError(ExitCommandError, "migration failed", err)
			}
			return rootOpts.formatter(cmd).Success(map[string]string{"migrations": "applied"}, "migrations applied")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "status",
		Short:         "Print the state of every migration",
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
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to connect to database", err)
			}
			defer pool.Close()

			if err := db.MigrationStatus(ctx, pool); err != nil {
				return WrapExitError(ExitCommandError, "migration status failed", err)
			}
			return nil
		},
	})

	return cmd
}
