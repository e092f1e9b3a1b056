// Package cli implements approvalctl, the operator command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/app"
	"github.com/deskflow/itsm-approvals/internal/config"
	"github.com/deskflow/itsm-approvals/internal/observability"
)

var (
	cfg     *config.Config
	logger  *zap.Logger
	version = "dev"
)

var errNoDatabase = errors.New("POSTGRES_DSN is required for this command")

var rootCmd = &cobra.Command{
	Use:           "approvalctl",
	Short:         "Operate the ITSM approval service",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err = observability.NewLogger(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to init logger: %w", err)
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "approvalctl %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetVersion overrides the reported version.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// openInfrastructure connects to the configured database. Commands here act
// on shared state, so the in-memory fallback is refused.
func openInfrastructure(ctx context.Context) (*app.Infrastructure, error) {
	if cfg.Postgres.DSN == "" {
		return nil, errNoDatabase
	}
	return app.NewInfrastructure(ctx, cfg, logger)
}
