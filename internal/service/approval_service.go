package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/observability"
	"github.com/deskflow/itsm-approvals/internal/repository"
	"github.com/deskflow/itsm-approvals/internal/workflow"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// statsWindow bounds the per-type approval time report.
const statsWindow = 30 * 24 * time.Hour

// ApprovalService runs approve/reject requests through the gate, claims the
// approver lock with a conditional write and persists the transition.
type ApprovalService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// ApprovalDependencies bundles collaborators for the approval service.
type ApprovalDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        func() time.Time
}

// ApproveInput is an approval request. A zero Level means level 1.
type ApproveInput struct {
	Level    domain.ApprovalLevel
	Comments string
}

// RejectInput is a rejection request. A zero Level is derived from the ticket.
type RejectInput struct {
	Level    domain.ApprovalLevel
	Reason   string
	Comments string
}

// NewApprovalService creates the service.
func NewApprovalService(deps ApprovalDependencies) *ApprovalService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &ApprovalService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("approvals"),
		now:        now,
	}
}

// PendingFor lists tickets waiting on the level the actor can approve.
// Roles that approve nothing get an empty list.
func (s *ApprovalService) PendingFor(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Ticket, error) {
	var (
		status domain.ApprovalStatus
		level  domain.ApprovalLevel
	)
	switch {
	case actor.Role.CanApprove(domain.ApprovalLevelManager):
		status, level = domain.ApprovalStatusPending, domain.ApprovalLevelManager
	case actor.Role.CanApprove(domain.ApprovalLevelCTO):
		status, level = domain.ApprovalStatusLevel1Approved, domain.ApprovalLevelCTO
	default:
		return []domain.Ticket{}, nil
	}

	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		ApprovalStatuses: []domain.ApprovalStatus{status},
		ApprovalLevel:    &level,
		ExcludeStatuses:  []domain.TicketStatus{domain.TicketStatusRejected},
		Limit:            limit,
		Offset:           offset,
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// Approve records actor's approval of ticketID.
func (s *ApprovalService) Approve(ctx context.Context, actor domain.Actor, ticketID string, input ApproveInput) (ticket *domain.Ticket, err error) {
	level := input.Level
	if level == 0 {
		level = domain.ApprovalLevelManager
	}

	ctx, span := observability.StartSpan(ctx, "approval.approve",
		attribute.String("ticket.id", ticketID),
		attribute.Int("approval.level", int(level)),
		attribute.String("actor.role", actor.Role.String()),
	)
	defer func() {
		s.record("approve", level, err)
		observability.EndSpan(span, err)
	}()

	claimed, err := s.claim(ctx, actor, ticketID, level, func() error {
		return workflow.ValidateApproval(level, input.Comments)
	})
	if err != nil {
		return nil, err
	}

	if err := workflow.ApplyApproval(claimed, level, actor.ID, input.Comments, s.now()); err != nil {
		s.abandonClaim(ctx, actor, ticketID)
		return nil, err
	}
	if err := s.save(ctx, actor, claimed); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketApproved, claimed, eventActor(actor), s.now(), events.ApprovedPayload{
		Level:    level,
		Approver: actor.ID,
		Comments: strings.TrimSpace(input.Comments),
	}))
	return claimed, nil
}

// Reject ends the approval chain for ticketID.
func (s *ApprovalService) Reject(ctx context.Context, actor domain.Actor, ticketID string, input RejectInput) (ticket *domain.Ticket, err error) {
	level := input.Level

	ctx, span := observability.StartSpan(ctx, "approval.reject",
		attribute.String("ticket.id", ticketID),
		attribute.String("actor.role", actor.Role.String()),
	)
	defer func() {
		s.record("reject", level, err)
		observability.EndSpan(span, err)
	}()

	if level == 0 {
		current, err := s.load(ctx, ticketID)
		if err != nil {
			return nil, err
		}
		level = workflow.PendingLevel(current)
	}
	span.SetAttributes(attribute.Int("approval.level", int(level)))

	claimed, err := s.claim(ctx, actor, ticketID, level, func() error {
		return workflow.ValidateRejection(input.Reason, input.Comments)
	})
	if err != nil {
		return nil, err
	}

	if err := workflow.ApplyRejection(claimed, input.Reason, input.Comments, actor.ID, s.now()); err != nil {
		s.abandonClaim(ctx, actor, ticketID)
		return nil, err
	}
	if err := s.save(ctx, actor, claimed); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewEvent(events.EventTicketRejected, claimed, eventActor(actor), s.now(), events.RejectedPayload{
		Level:    level,
		Approver: actor.ID,
		Reason:   strings.TrimSpace(input.Reason),
		Comments: strings.TrimSpace(input.Comments),
	}))
	return claimed, nil
}

// Release clears the approver lock. Only admins may do this.
func (s *ApprovalService) Release(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("Only admins can release an approval lock",
			map[string]any{"role": actor.Role.String()})
	}

	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	previous := ticket.CurrentApprover
	if !workflow.ReleaseLock(ticket) {
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, mapTicketWriteError(err)
	}

	s.logger.Info("approval lock released",
		zap.String("ticket_id", ticket.ID),
		zap.String("released_by", actor.ID),
		zap.Stringp("previous_approver", previous),
	)
	s.publish(ctx, events.NewEvent(events.EventApprovalReleased, ticket, eventActor(actor), s.now(), nil))
	return ticket, nil
}

// LevelStats reports per-level approval counts and average hours.
func (s *ApprovalService) LevelStats(ctx context.Context) ([]domain.ApprovalLevelStat, error) {
	stats, err := s.tickets.ApprovalLevelStats(ctx)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if stats == nil {
		stats = []domain.ApprovalLevelStat{}
	}
	return stats, nil
}

// TimeByType reports approval turnaround per ticket type over the last month.
func (s *ApprovalService) TimeByType(ctx context.Context) ([]domain.ApprovalTimeStat, error) {
	stats, err := s.tickets.ApprovalTimeByType(ctx, s.now().Add(-statsWindow))
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if stats == nil {
		stats = []domain.ApprovalTimeStat{}
	}
	return stats, nil
}

// claim runs the gate on a fresh read, validates input, then takes the
// approver lock with a conditional write. When the conditional write loses
// a race the gate is re-run on the winner's state so the caller sees the
// precise reason.
func (s *ApprovalService) claim(ctx context.Context, actor domain.Actor, ticketID string, level domain.ApprovalLevel, validate func() error) (*domain.Ticket, error) {
	ticket, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := workflow.CheckGate(actor, ticket, level); err != nil {
		return nil, err
	}
	if err := validate(); err != nil {
		return nil, err
	}

	required, _ := level.RequiredStatus()
	claimed, err := s.tickets.ClaimApprover(ctx, ticketID, actor.ID, required, level)
	switch {
	case err == nil:
		return claimed, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, repository.ErrLockUnavailable):
		current, loadErr := s.load(ctx, ticketID)
		if loadErr != nil {
			return nil, loadErr
		}
		if gateErr := workflow.CheckGate(actor, current, level); gateErr != nil {
			return nil, gateErr
		}
		return nil, apperrors.NewConcurrentApproval(approverOf(current))
	default:
		return nil, apperrors.NewPersistenceError(err)
	}
}

// save persists a transition on the claimed ticket. A version conflict means
// someone else wrote in between; the lock taken by claim is handed back.
func (s *ApprovalService) save(ctx context.Context, actor domain.Actor, ticket *domain.Ticket) error {
	err := s.tickets.Update(ctx, ticket)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		current := s.abandonClaim(ctx, actor, ticket.ID)
		return apperrors.NewConcurrentApproval(approverOf(current))
	}
	return mapTicketWriteError(err)
}

// abandonClaim drops a lock this actor took but could not use and returns
// the ticket as it stands afterwards, or nil when it could not be read.
func (s *ApprovalService) abandonClaim(ctx context.Context, actor domain.Actor, ticketID string) *domain.Ticket {
	current, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil
	}
	if !workflow.HoldsLock(actor, current) {
		return current
	}
	workflow.ReleaseLock(current)
	if err := s.tickets.Update(ctx, current); err != nil {
		s.logger.Warn("failed to release abandoned approver lock",
			zap.String("ticket_id", ticketID), zap.String("approver", actor.ID), zap.Error(err))
	}
	return current
}

func approverOf(ticket *domain.Ticket) string {
	if ticket == nil || ticket.CurrentApprover == nil {
		return ""
	}
	return *ticket.CurrentApprover
}

func (s *ApprovalService) load(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	return ticket, nil
}

func (s *ApprovalService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}

func (s *ApprovalService) record(action string, level domain.ApprovalLevel, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.ToDomainError(err).Code
	}
	s.metrics.RecordApproval(action, int(level), outcome)
}

func mapTicketWriteError(err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("ticket", nil)
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConcurrentApproval("")
	default:
		return apperrors.NewPersistenceError(err)
	}
}

func eventActor(actor domain.Actor) events.Actor {
	id := actor.ID
	return events.Actor{UserID: &id, Role: actor.Role}
}
