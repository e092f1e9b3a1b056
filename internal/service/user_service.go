package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/repository"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// UserService provisions the people who submit and approve tickets.
// Registration is not self-service: admins and operators create accounts.
type UserService struct {
	users   repository.UserRepository
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// UserDependencies bundles repositories for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	TicketRepo repository.TicketRepository
	Logger     *zap.Logger
}

// UserCreateInput describes a new account. An empty Role means employee.
type UserCreateInput struct {
	Name    string
	Email   string
	Role    string
	SlackID string
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:   deps.UserRepo,
		tickets: deps.TicketRepo,
		logger:  logger.Named("users"),
	}
}

// ListUsers returns every account, oldest first.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if users == nil {
		users = []domain.User{}
	}
	return users, nil
}

// CreateUser validates input and stores the account.
func (s *UserService) CreateUser(ctx context.Context, input UserCreateInput) (*domain.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if email == "" {
		details["email"] = "required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		details["email"] = "must be a valid address"
	}
	role, err := domain.ParseRole(input.Role)
	if err != nil {
		details["role"] = "must be employee, manager, cto or admin"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid user", details)
	}

	user := &domain.User{Name: name, Email: email, Role: role}
	if slackID := strings.TrimSpace(input.SlackID); slackID != "" {
		user.SlackID = &slackID
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewValidationError("User already exists", map[string]any{"email": email})
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", user.Role.String()))
	return user, nil
}

// DeleteUser removes an account that no ticket refers to. Admins cannot
// remove themselves.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Actor, userID string) error {
	if actor.ID == userID {
		return apperrors.NewValidationError("You cannot delete your own account", map[string]any{"id": userID})
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", nil)
		}
		return apperrors.NewPersistenceError(err)
	}

	submitted, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{CreatedBy: &userID, Limit: 1})
	if err != nil {
		return apperrors.NewPersistenceError(err)
	}
	if len(submitted) > 0 {
		return userInUse(userID)
	}

	err = s.users.Delete(ctx, userID)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("user", nil)
	case errors.Is(err, repository.ErrUserInUse):
		return userInUse(userID)
	default:
		return apperrors.NewPersistenceError(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("deleted_by", actor.ID))
	return nil
}

func userInUse(userID string) error {
	return apperrors.NewValidationError("User still has tickets", map[string]any{"id": userID})
}
