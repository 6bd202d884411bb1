// Package cli implements the leadctl operator commands.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"leadsync_backend/internal/bootstrap"
	"leadsync_backend/platform/config"
	"leadsync_backend/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	DryRun  bool

	// LoadConfig and Build are replaced in tests.
	LoadConfig func() (*config.Config, error)
	Build      func(ctx context.Context, cfg *config.Config, log *logger.Logger, opts bootstrap.Options) (*bootstrap.Runtime, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for leadctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		LoadConfig: config.Load,
		Build:      bootstrap.Build,
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leadctl",
		Short: "leadctl - lead lifecycle operations",
		Long:  "Operator tooling for the lead lifecycle synchronizer: run ticks, import from the CRM, manage migrations and sheet snapshots.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "keep state in memory and send nothing")

	cmd.AddCommand(NewTickCommand(opts))
	cmd.AddCommand(NewCRMSyncCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// environment loads configuration and a logger for a command.
func (o *RootOptions) environment() (*config.Config, *logger.Logger, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	env := cfg.Env
	if o.Verbose {
		env = "development"
	}
	return cfg, logger.New(env), nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
