package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/repository"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// TicketService handles ticket submission and lookup.
type TicketService struct {
	tickets        repository.TicketRepository
	dispatcher     events.Dispatcher
	logger         *zap.Logger
	now            func() time.Time
	defaultTimeout int
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo          repository.TicketRepository
	Dispatcher          events.Dispatcher
	Logger              *zap.Logger
	Now                 func() time.Time
	DefaultTimeoutHours int
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title                string
	Description          string
	Type                 string
	Priority             domain.TicketPriority
	ApprovalTimeoutHours int
}

// TicketCreatedPayload is published when a ticket enters the approval chain.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Type     string                `json:"type"`
	Priority domain.TicketPriority `json:"priority"`
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	timeout := deps.DefaultTimeoutHours
	if timeout <= 0 {
		timeout = domain.DefaultApprovalTimeoutHours
	}
	return &TicketService{
		tickets:        deps.TicketRepo,
		dispatcher:     deps.Dispatcher,
		logger:         logger.Named("tickets"),
		now:            now,
		defaultTimeout: timeout,
	}
}

// CreateTicket submits a ticket on behalf of actor.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	ticketType := strings.TrimSpace(input.Type)
	details := map[string]any{}
	if title == "" {
		details["title"] = "required"
	}
	if ticketType == "" {
		details["type"] = "required"
	}
	switch input.Priority {
	case "", domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh:
	default:
		details["priority"] = "must be Low, Medium or High"
	}
	if input.ApprovalTimeoutHours < 0 {
		details["approvalTimeout"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid ticket", details)
	}

	ticket := domain.NewTicket(actor.ID, title, strings.TrimSpace(input.Description), ticketType, input.Priority)
	ticket.ApprovalTimeoutHours = s.defaultTimeout
	if input.ApprovalTimeoutHours > 0 {
		ticket.ApprovalTimeoutHours = input.ApprovalTimeoutHours
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}

	if s.dispatcher != nil {
		event := events.NewEvent(events.EventTicketCreated, ticket, eventActor(actor), s.now(), TicketCreatedPayload{
			Title:    ticket.Title,
			Type:     ticket.Type,
			Priority: ticket.Priority,
		})
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("event publish failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

// ListUserTickets returns paginated tickets submitted by actor.
func (s *TicketService) ListUserTickets(ctx context.Context, actor domain.Actor, limit, offset int) ([]domain.Ticket, error) {
	createdBy := actor.ID
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		CreatedBy: &createdBy,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// TicketQuery narrows the admin ticket listing.
type TicketQuery struct {
	// Stuck keeps tickets the sweep has handed over and left locked, which
	// need a manual release.
	Stuck  bool
	Locked bool
	Limit  int
	Offset int
}

// ListAllTickets returns every ticket, newest first. It backs the admin
// console, so callers enforce the admin role.
func (s *TicketService) ListAllTickets(ctx context.Context, query TicketQuery) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		LockHeld:    query.Locked || query.Stuck,
		NewestFirst: true,
		Limit:       query.Limit,
		Offset:      query.Offset,
	}
	if query.Stuck {
		filter.MinEscalationLevel = 2
		filter.ApprovalStatuses = []domain.ApprovalStatus{
			domain.ApprovalStatusPending,
			domain.ApprovalStatusLevel1Approved,
		}
	}
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewPersistenceError(err)
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// GetTicket returns a ticket visible to actor: its submitter, or anyone in
// the approval chain.
func (s *TicketService) GetTicket(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.NewPersistenceError(err)
	}
	if ticket.CreatedBy != actor.ID && actor.Role == domain.RoleEmployee {
		return nil, apperrors.NewForbidden("Ticket belongs to another user", nil)
	}
	return ticket, nil
}
