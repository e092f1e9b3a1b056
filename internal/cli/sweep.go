package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/app"
	"github.com/deskflow/itsm-approvals/internal/service"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one escalation sweep and exit",
	Long: `Run a single escalation pass over every ticket awaiting approval:
send first reminders and hand timed-out tickets to the next approver.
The pass takes the same Redis lease as the server's scheduled sweep, so it
does nothing while a replica is sweeping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		infra, err := openInfrastructure(cmd.Context())
		if err != nil {
			return err
		}
		defer infra.Close()

		services := app.NewServices(cfg, infra, logger)
		services.Start(cmd.Context())

		report, sweepErr := services.Escalation.SweepLeased(cmd.Context())
		if err := services.Stop(cmd.Context()); err != nil {
			logger.Warn("notification drain incomplete", zap.Error(err))
		}
		if errors.Is(sweepErr, service.ErrSweepSkipped) {
			fmt.Fprintln(cmd.ErrOrStderr(), "another replica holds the sweep lease; nothing done")
			return nil
		}
		if sweepErr != nil {
			return fmt.Errorf("sweep failed: %w", sweepErr)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
