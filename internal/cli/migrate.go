package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskflow/itsm-approvals/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply embedded database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Postgres.DSN == "" {
			return errNoDatabase
		}
		pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer pg.Close()

		if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), logger); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
