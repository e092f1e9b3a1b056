package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/deskflow/itsm-approvals/internal/config"
	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/observability"
	"github.com/deskflow/itsm-approvals/internal/persistence"
	"github.com/deskflow/itsm-approvals/internal/repository"
	"github.com/deskflow/itsm-approvals/internal/workflow"
)

var (
	// ErrNoEscalationTarget is logged when nobody can take over a timed-out ticket.
	ErrNoEscalationTarget = errors.New("no escalation target")
	// ErrSweepSkipped means another replica holds the sweep lease.
	ErrSweepSkipped = errors.New("escalation sweep skipped: lease held elsewhere")
)

// Locker guards a sweep so only one replica runs it per tick.
type Locker interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// EscalationService reminds and reassigns approvers of stale tickets.
type EscalationService struct {
	tickets    repository.TicketRepository
	users      repository.UserRepository
	dispatcher events.Dispatcher
	lock       Locker
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.EscalationConfig
	now        func() time.Time
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Lock       Locker
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.EscalationConfig
	Now        func() time.Time
}

// SweepReport summarizes one pass.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Reminded  int `json:"reminded"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// NewEscalationService creates the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg := deps.Config
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	return &EscalationService{
		tickets:    deps.TicketRepo,
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		lock:       deps.Lock,
		metrics:    deps.Metrics,
		logger:     logger.Named("escalation"),
		cfg:        cfg,
		now:        now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *EscalationService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("escalation sweep scheduled", zap.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("escalation sweep stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *EscalationService) tick(ctx context.Context) {
	report, err := s.SweepLeased(ctx)
	switch {
	case errors.Is(err, ErrSweepSkipped):
		s.logger.Debug("escalation sweep skipped; lease held elsewhere")
		return
	case err != nil:
		s.logger.Error("escalation sweep failed", zap.Error(err))
		return
	}
	s.logger.Info("escalation sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("reminded", report.Reminded),
		zap.Int("escalated", report.Escalated),
		zap.Int("failed", report.Failed),
	)
}

// SweepLeased runs Sweep while holding the replica lease. It returns
// ErrSweepSkipped when another replica holds the lease. When the lease store
// itself fails the sweep still runs.
func (s *EscalationService) SweepLeased(ctx context.Context) (SweepReport, error) {
	if s.lock != nil {
		err := s.lock.Acquire(ctx)
		switch {
		case errors.Is(err, persistence.ErrLeaseHeld):
			s.metrics.RecordEscalation("skipped")
			return SweepReport{}, ErrSweepSkipped
		case err != nil:
			// Conditional writes keep a duplicate sweep harmless.
			s.logger.Warn("escalation lease unavailable; sweeping anyway", zap.Error(err))
		default:
			defer func() {
				if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("escalation lease release failed", zap.Error(err))
				}
			}()
		}
	}
	return s.Sweep(ctx)
}

// Sweep runs one pass over every ticket awaiting approval. Failures on one
// ticket are logged and do not stop the pass.
func (s *EscalationService) Sweep(ctx context.Context) (report SweepReport, err error) {
	ctx, span := observability.StartSpan(ctx, "escalation.sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int("sweep.scanned", report.Scanned),
			attribute.Int("sweep.failed", report.Failed),
		)
		observability.EndSpan(span, err)
	}()

	tickets, err := s.tickets.ListAwaitingApproval(ctx)
	if err != nil {
		return report, fmt.Errorf("list awaiting approval: %w", err)
	}

	for i := range tickets {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		ticket := &tickets[i]
		report.Scanned++

		action := workflow.NextEscalation(ticket, s.now())
		var actErr error
		switch action {
		case workflow.EscalationRemind:
			actErr = s.remind(ctx, ticket)
		case workflow.EscalationReassign:
			actErr = s.reassign(ctx, ticket)
		default:
			continue
		}

		if actErr != nil {
			report.Failed++
			s.metrics.RecordEscalation("failed")
			s.logger.Warn("escalation step failed",
				zap.String("ticket_id", ticket.ID),
				zap.String("action", action.String()),
				zap.Int("escalation_level", ticket.EscalationLevel),
				zap.Error(actErr),
			)
			continue
		}
		s.metrics.RecordEscalation(action.String())
		if action == workflow.EscalationRemind {
			report.Reminded++
		} else {
			report.Escalated++
		}
	}
	return report, nil
}

func (s *EscalationService) remind(ctx context.Context, ticket *domain.Ticket) error {
	recipients, err := s.reminderRecipients(ctx, ticket)
	if err != nil {
		return err
	}

	now := s.now()
	workflow.ApplyReminder(ticket, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("save reminder: %w", err)
	}

	s.publish(ctx, events.NewEvent(events.EventApprovalReminder, ticket, systemActor(), now, events.ReminderPayload{
		Recipients: recipients,
	}))
	return nil
}

func (s *EscalationService) reassign(ctx context.Context, ticket *domain.Ticket) error {
	next, err := s.nextApprover(ctx, workflow.PendingLevel(ticket))
	if err != nil {
		return err
	}

	previous := ticket.CurrentApprover
	now := s.now()
	workflow.ApplyEscalation(ticket, next.ID, now)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return fmt.Errorf("save escalation: %w", err)
	}

	s.publish(ctx, events.NewEvent(events.EventApprovalEscalated, ticket, systemActor(), now, events.EscalatedPayload{
		PreviousApprover: previous,
		NewApprover:      *next,
	}))
	return nil
}

// reminderRecipients is the lock holder, or every user able to approve the
// pending level when nobody holds the lock.
func (s *EscalationService) reminderRecipients(ctx context.Context, ticket *domain.Ticket) ([]domain.User, error) {
	if ticket.CurrentApprover != nil {
		user, err := s.users.GetByID(ctx, *ticket.CurrentApprover)
		if err == nil {
			return []domain.User{*user}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load current approver: %w", err)
		}
	}

	role, ok := domain.ApproverRoleFor(workflow.PendingLevel(ticket))
	if !ok {
		return nil, nil
	}
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("list %s approvers: %w", role, err)
	}
	return users, nil
}

// nextApprover is the configured CTO for level 1 and the first admin for level 2.
func (s *EscalationService) nextApprover(ctx context.Context, level domain.ApprovalLevel) (*domain.User, error) {
	switch level {
	case domain.ApprovalLevelManager:
		user, err := s.users.GetByEmail(ctx, s.cfg.CTOEmail)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: cto %s", ErrNoEscalationTarget, s.cfg.CTOEmail)
		}
		if err != nil {
			return nil, fmt.Errorf("load cto: %w", err)
		}
		return user, nil
	case domain.ApprovalLevelCTO:
		admins, err := s.users.ListByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		if len(admins) == 0 {
			return nil, fmt.Errorf("%w: no admin users", ErrNoEscalationTarget)
		}
		return &admins[0], nil
	}
	return nil, fmt.Errorf("%w: level %d", ErrNoEscalationTarget, level)
}

func (s *EscalationService) publish(ctx context.Context, event events.Event) {
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

func systemActor() events.Actor {
	return events.Actor{Role: domain.RoleAdmin}
}
