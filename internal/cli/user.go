package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskflow/itsm-approvals/internal/service"
)

var (
	userName    string
	userEmail   string
	userRole    string
	userSlackID string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user with a role",
	RunE: func(cmd *cobra.Command, args []string) error {
		infra, err := openInfrastructure(cmd.Context())
		if err != nil {
			return err
		}
		defer infra.Close()

		users := service.NewUserService(service.UserDependencies{
			UserRepo:   infra.Users,
			TicketRepo: infra.Tickets,
			Logger:     logger,
		})
		user, err := users.CreateUser(cmd.Context(), service.UserCreateInput{
			Name:    userName,
			Email:   userEmail,
			Role:    userRole,
			SlackID: userSlackID,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", user.ID, user.Email, user.Role)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userCreateCmd.Flags().StringVar(&userRole, "role", "employee", "employee, manager, cto or admin")
	userCreateCmd.Flags().StringVar(&userSlackID, "slack-id", "", "Slack member id")
	userCmd.AddCommand(userCreateCmd)
}
