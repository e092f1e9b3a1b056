package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deskflow/itsm-approvals/internal/domain"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

var now = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

func TestApplyApprovalLevel1(t *testing.T) {
	ticket := pendingTicket()
	holder := manager.ID
	ticket.CurrentApprover = &holder
	ticket.EscalationLevel = 1
	reason := ReasonInitialReminder
	ticket.EscalationReason = &reason

	require.NoError(t, ApplyApproval(ticket, domain.ApprovalLevelManager, manager.ID, "  Looks good ", now))

	require.Equal(t, domain.ApprovalStatusLevel1Approved, ticket.ApprovalStatus)
	require.Equal(t, domain.TicketStatusPending, ticket.Status)
	require.Equal(t, domain.ApprovalLevelCTO, ticket.ApprovalLevel)
	require.Nil(t, ticket.CurrentApprover)
	require.Zero(t, ticket.EscalationLevel)
	require.Nil(t, ticket.EscalationReason)
	require.NotNil(t, ticket.LastApprovalReminder)
	require.Equal(t, now, *ticket.LastApprovalReminder)

	require.Len(t, ticket.ApprovalHistory, 1)
	entry := ticket.ApprovalHistory[0]
	require.Equal(t, domain.ApprovalLevelManager, entry.Level)
	require.Equal(t, domain.HistoryStatusApproved, entry.Status)
	require.Equal(t, manager.ID, *entry.Approver)
	require.Equal(t, "Looks good", entry.Comments)
	require.Equal(t, now, entry.Timestamp)
}

func TestApplyApprovalLevel2(t *testing.T) {
	ticket := level1ApprovedTicket()

	require.NoError(t, ApplyApproval(ticket, domain.ApprovalLevelCTO, cto.ID, "Approved", now))

	require.Equal(t, domain.ApprovalStatusLevel2Approved, ticket.ApprovalStatus)
	require.Equal(t, domain.TicketStatusApproved, ticket.Status)
	require.True(t, ticket.ApprovalStatus.Terminal())
	require.Len(t, ticket.ApprovalHistory, 2)
	require.True(t, ticket.HasApproval(domain.ApprovalLevelCTO))
	require.Nil(t, ticket.CurrentApprover)
}

func TestApplyApprovalValidation(t *testing.T) {
	ticket := pendingTicket()
	before := ticket.Clone()

	err := ApplyApproval(ticket, domain.ApprovalLevelManager, manager.ID, "   ", now)
	require.ErrorIs(t, err, apperrors.ErrMissingComments)

	err = ApplyApproval(ticket, domain.ApprovalLevel(3), manager.ID, "fine", now)
	require.ErrorIs(t, err, apperrors.ErrInvalidLevel)

	require.Equal(t, before, ticket)
}

func TestApplyRejectionUsesTicketLevel(t *testing.T) {
	ticket := level1ApprovedTicket()

	require.NoError(t, ApplyRejection(ticket, " Budget ", "Not this quarter", cto.ID, now))

	require.Equal(t, domain.TicketStatusRejected, ticket.Status)
	require.Equal(t, domain.ApprovalStatusRejected, ticket.ApprovalStatus)
	require.Equal(t, "Budget", *ticket.RejectionReason)
	require.True(t, ticket.ApprovalStatus.Terminal())

	last := ticket.ApprovalHistory[len(ticket.ApprovalHistory)-1]
	require.Equal(t, domain.ApprovalLevelCTO, last.Level)
	require.Equal(t, domain.HistoryStatusRejected, last.Status)
	require.Equal(t, "Budget", *last.RejectionReason)
	require.Equal(t, cto.ID, *last.Approver)
}

func TestApplyRejectionValidation(t *testing.T) {
	ticket := pendingTicket()

	require.ErrorIs(t, ApplyRejection(ticket, "", "comments", manager.ID, now), apperrors.ErrMissingReason)
	require.ErrorIs(t, ApplyRejection(ticket, "reason", " ", manager.ID, now), apperrors.ErrMissingComments)
	require.Empty(t, ticket.ApprovalHistory)
	require.Equal(t, domain.ApprovalStatusPending, ticket.ApprovalStatus)
}

func TestReleaseLock(t *testing.T) {
	ticket := pendingTicket()
	require.False(t, ReleaseLock(ticket))

	holder := manager.ID
	ticket.CurrentApprover = &holder
	require.True(t, ReleaseLock(ticket))
	require.Nil(t, ticket.CurrentApprover)
	require.Empty(t, ticket.ApprovalHistory)
}

func TestFullApprovalChain(t *testing.T) {
	ticket := pendingTicket()

	require.NoError(t, CheckGate(manager, ticket, domain.ApprovalLevelManager))
	require.NoError(t, ApplyApproval(ticket, domain.ApprovalLevelManager, manager.ID, "ok", now))

	require.ErrorIs(t, CheckGate(manager, ticket, domain.ApprovalLevelManager), apperrors.ErrInvalidState)
	require.NoError(t, CheckGate(cto, ticket, domain.ApprovalLevelCTO))
	require.NoError(t, ApplyApproval(ticket, domain.ApprovalLevelCTO, cto.ID, "ok", now.Add(time.Hour)))

	require.ErrorIs(t, CheckGate(cto, ticket, domain.ApprovalLevelCTO), apperrors.ErrInvalidState)
	require.Equal(t, domain.TicketStatusApproved, ticket.Status)
}
