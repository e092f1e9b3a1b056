package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deskflow/itsm-approvals/internal/auth"
	"github.com/deskflow/itsm-approvals/internal/domain"
)

var (
	tokenUserID string
	tokenEmail  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUserID == "" && tokenEmail == "" {
			return errors.New("one of --user or --email is required")
		}

		infra, err := openInfrastructure(cmd.Context())
		if err != nil {
			return err
		}
		defer infra.Close()

		var user *domain.User
		if tokenUserID != "" {
			user, err = infra.Users.GetByID(cmd.Context(), tokenUserID)
		} else {
			user, err = infra.Users.GetByEmail(cmd.Context(), tokenEmail)
		}
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}

		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		token, expiresAt, err := tokens.GenerateToken(user)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, token)
		fmt.Fprintf(out, "# user=%s role=%s expires=%s\n", user.ID, user.Role, expiresAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "user email")
}
