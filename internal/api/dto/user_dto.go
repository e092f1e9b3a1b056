package dto

import (
	"time"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

// CreateUserRequest payload for admin-provisioned accounts.
type CreateUserRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	SlackID string `json:"slackId"`
}

// UserResponse is a user as listed to admins.
type UserResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	SlackID   *string     `json:"slackId,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// UserFromDomain maps a user to its response shape.
func UserFromDomain(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		SlackID:   u.SlackID,
		CreatedAt: u.CreatedAt,
	}
}

// UsersFromDomain maps a list, never returning nil.
func UsersFromDomain(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, UserFromDomain(&users[i]))
	}
	return out
}
