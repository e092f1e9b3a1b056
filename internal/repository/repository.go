package repository

import (
	"context"
	"errors"
	"time"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

var (
	// ErrVersionConflict means the ticket changed since it was read.
	ErrVersionConflict = errors.New("ticket version conflict")
	// ErrLockUnavailable means the approver lock could not be claimed: another
	// approver holds it, or the ticket left the expected approval state.
	ErrLockUnavailable = errors.New("approver lock unavailable")
	// ErrDuplicateEmail mirrors the unique constraint on users.email.
	ErrDuplicateEmail = errors.New("user email already exists")
	// ErrUserInUse means tickets still reference the user.
	ErrUserInUse = errors.New("user is referenced by tickets")
)

// TicketFilter captures listing parameters. Results are oldest first unless
// NewestFirst is set.
type TicketFilter struct {
	CreatedBy          *string
	ApprovalStatuses   []domain.ApprovalStatus
	ApprovalLevel      *domain.ApprovalLevel
	ExcludeStatuses    []domain.TicketStatus
	MinEscalationLevel int
	LockHeld           bool
	NewestFirst        bool
	Limit              int
	Offset             int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Update replaces the stored ticket only when its version still equals
	// ticket.Version, then advances ticket.Version.
	Update(ctx context.Context, ticket *domain.Ticket) error
	// ClaimApprover sets current_approver to approverID when the lock is free
	// (or already held by approverID), the ticket is still at expected and
	// level has no recorded approval.
	ClaimApprover(ctx context.Context, id, approverID string, expected domain.ApprovalStatus, level domain.ApprovalLevel) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListAwaitingApproval(ctx context.Context) ([]domain.Ticket, error)
	ApprovalLevelStats(ctx context.Context) ([]domain.ApprovalLevelStat, error)
	ApprovalTimeByType(ctx context.Context, since time.Time) ([]domain.ApprovalTimeStat, error)
}

// UserRepository defines persistence access for users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	// Delete removes the user, failing with ErrUserInUse while tickets
	// reference it.
	Delete(ctx context.Context, id string) error
}
