package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/deskflow/itsm-approvals/internal/config"
	"github.com/deskflow/itsm-approvals/internal/domain"
	"github.com/deskflow/itsm-approvals/internal/events"
	"github.com/deskflow/itsm-approvals/internal/observability"
	"github.com/deskflow/itsm-approvals/internal/persistence"
	"github.com/deskflow/itsm-approvals/internal/workflow"
)

type lockerMock struct{ mock.Mock }

func (m *lockerMock) Acquire(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *lockerMock) Release(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newEscalationService(f *fixture, lock Locker, metrics *observability.Metrics, ctoEmail string) *EscalationService {
	return NewEscalationService(EscalationDependencies{
		TicketRepo: f.tickets,
		UserRepo:   f.users,
		Dispatcher: f.events,
		Lock:       lock,
		Metrics:    metrics,
		Config: config.EscalationConfig{
			Interval: time.Minute,
			CTOEmail: ctoEmail,
		},
		Now: f.clock.Now,
	})
}

func TestSweepRemindThenReassign(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	metrics := observability.NewMetrics()
	svc := newEscalationService(f, nil, metrics, "CTO@company.com")
	ticket := f.newTicket(t)

	f.clock.Advance(23 * time.Hour)
	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 1}, report)

	f.clock.Advance(time.Hour)
	report, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 1, Reminded: 1}, report)

	stored := f.reload(t, ticket.ID)
	require.Equal(t, 1, stored.EscalationLevel)
	require.Equal(t, workflow.ReasonInitialReminder, *stored.EscalationReason)
	require.Equal(t, f.clock.Now(), *stored.LastApprovalReminder)

	reminders := f.events.ofType(events.EventApprovalReminder)
	require.Len(t, reminders, 1)
	payload := reminders[0].Payload.(events.ReminderPayload)
	require.Len(t, payload.Recipients, 2)
	require.Equal(t, f.manager.ID, payload.Recipients[0].ID)
	require.Equal(t, f.manager2.ID, payload.Recipients[1].ID)
	require.Nil(t, reminders[0].Actor.UserID)

	f.clock.Advance(12 * time.Hour)
	report, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 1}, report)

	f.clock.Advance(12 * time.Hour)
	report, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 1, Escalated: 1}, report)

	stored = f.reload(t, ticket.ID)
	require.Equal(t, 2, stored.EscalationLevel)
	require.Equal(t, f.cto.ID, *stored.CurrentApprover)
	require.Equal(t, domain.ApprovalStatusPending, stored.ApprovalStatus)
	require.Len(t, stored.ApprovalHistory, 1)
	require.Equal(t, domain.HistoryStatusEscalated, stored.ApprovalHistory[0].Status)
	require.Nil(t, stored.ApprovalHistory[0].Approver)

	escalated := f.events.ofType(events.EventApprovalEscalated)
	require.Len(t, escalated, 1)
	require.Equal(t, f.cto.ID, escalated[0].Payload.(events.EscalatedPayload).NewApprover.ID)

	f.clock.Advance(100 * time.Hour)
	report, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 1}, report)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.EscalationActions["remind"])
	require.Equal(t, int64(1), snap.EscalationActions["reassign"])
}

func TestSweepRemindsLockHolder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newEscalationService(f, nil, nil, "cto@company.com")
	ticket := f.newTicket(t)

	_, err := f.tickets.ClaimApprover(ctx, ticket.ID, f.manager2.ID, domain.ApprovalStatusPending, domain.ApprovalLevelManager)
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	_, err = svc.Sweep(ctx)
	require.NoError(t, err)

	reminders := f.events.ofType(events.EventApprovalReminder)
	require.Len(t, reminders, 1)
	recipients := reminders[0].Payload.(events.ReminderPayload).Recipients
	require.Len(t, recipients, 1)
	require.Equal(t, f.manager2.ID, recipients[0].ID)
}

func TestSweepLevel2EscalatesToAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	approvals := newApprovalService(f, nil, nil)
	svc := newEscalationService(f, nil, nil, "cto@company.com")
	ticket := f.newTicket(t)

	_, err := approvals.Approve(ctx, f.manager.Actor(), ticket.ID, ApproveInput{Comments: "ok"})
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Reminded)
	recipients := f.events.ofType(events.EventApprovalReminder)[0].Payload.(events.ReminderPayload).Recipients
	require.Len(t, recipients, 1)
	require.Equal(t, f.cto.ID, recipients[0].ID)

	f.clock.Advance(24 * time.Hour)
	report, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Escalated)

	stored := f.reload(t, ticket.ID)
	require.Equal(t, f.admin.ID, *stored.CurrentApprover)
	last := stored.ApprovalHistory[len(stored.ApprovalHistory)-1]
	require.Equal(t, domain.ApprovalLevelCTO, last.Level)
	require.Equal(t, domain.HistoryStatusEscalated, last.Status)
}

func TestSweepMissingCTOCountsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newEscalationService(f, nil, nil, "nobody@company.com")
	ticket := f.newTicket(t)
	healthy := f.newTicket(t)

	f.clock.Advance(24 * time.Hour)
	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	// Leave one ticket freshly reminded so only the other is due.
	fresh := f.reload(t, healthy.ID)
	f.clock.Advance(24 * time.Hour)
	reminder := f.clock.Now()
	fresh.LastApprovalReminder = &reminder
	require.NoError(t, f.tickets.Update(ctx, fresh))

	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 2, Failed: 1}, report)

	stored := f.reload(t, ticket.ID)
	require.Equal(t, 1, stored.EscalationLevel)
	require.Nil(t, stored.CurrentApprover)
	require.Empty(t, f.events.ofType(events.EventApprovalEscalated))
}

func TestSweepSkipsFinishedTickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	approvals := newApprovalService(f, nil, nil)
	svc := newEscalationService(f, nil, nil, "cto@company.com")
	ticket := f.newTicket(t)

	_, err := approvals.Reject(ctx, f.manager.Actor(), ticket.ID, RejectInput{Reason: "no", Comments: "no"})
	require.NoError(t, err)

	f.clock.Advance(72 * time.Hour)
	report, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepReport{}, report)
}

func TestTickLeaseHeldSkipsSweep(t *testing.T) {
	f := newFixture(t)
	lock := &lockerMock{}
	lock.On("Acquire", mock.Anything).Return(persistence.ErrLeaseHeld).Once()
	svc := newEscalationService(f, lock, nil, "cto@company.com")
	ticket := f.newTicket(t)

	f.clock.Advance(30 * time.Hour)
	svc.tick(context.Background())

	require.Zero(t, f.reload(t, ticket.ID).EscalationLevel)
	lock.AssertExpectations(t)
	lock.AssertNotCalled(t, "Release", mock.Anything)
}

func TestTickAcquiresAndReleases(t *testing.T) {
	f := newFixture(t)
	lock := &lockerMock{}
	lock.On("Acquire", mock.Anything).Return(nil).Once()
	lock.On("Release", mock.Anything).Return(nil).Once()
	svc := newEscalationService(f, lock, nil, "cto@company.com")
	ticket := f.newTicket(t)

	f.clock.Advance(30 * time.Hour)
	svc.tick(context.Background())

	require.Equal(t, 1, f.reload(t, ticket.ID).EscalationLevel)
	lock.AssertExpectations(t)
}

func TestTickSweepsWhenLeaseStoreIsDown(t *testing.T) {
	f := newFixture(t)
	lock := &lockerMock{}
	lock.On("Acquire", mock.Anything).Return(errors.New("dial tcp: connection refused")).Once()
	svc := newEscalationService(f, lock, nil, "cto@company.com")
	ticket := f.newTicket(t)

	f.clock.Advance(30 * time.Hour)
	svc.tick(context.Background())

	require.Equal(t, 1, f.reload(t, ticket.ID).EscalationLevel)
	lock.AssertExpectations(t)
	lock.AssertNotCalled(t, "Release", mock.Anything)
}

func TestSweepLeased(t *testing.T) {
	f := newFixture(t)
	lock := &lockerMock{}
	lock.On("Acquire", mock.Anything).Return(persistence.ErrLeaseHeld).Once()
	lock.On("Acquire", mock.Anything).Return(nil).Once()
	lock.On("Release", mock.Anything).Return(nil).Once()
	svc := newEscalationService(f, lock, nil, "cto@company.com")
	f.newTicket(t)
	f.clock.Advance(30 * time.Hour)

	report, err := svc.SweepLeased(context.Background())
	require.ErrorIs(t, err, ErrSweepSkipped)
	require.Equal(t, SweepReport{}, report)

	report, err = svc.SweepLeased(context.Background())
	require.NoError(t, err)
	require.Equal(t, SweepReport{Scanned: 1, Reminded: 1}, report)
	lock.AssertExpectations(t)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	svc := newEscalationService(f, nil, nil, "cto@company.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
