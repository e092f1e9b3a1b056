// Package workflow holds the ticket approval state machine: the gate that
// guards every approve/reject call, the transitions applied once the gate
// passes, and the escalation decisions taken by the background sweep.
//
// Everything here is pure. Persistence, locking and notifications are the
// caller's business (see internal/service).
package workflow

import (
	"github.com/deskflow/itsm-approvals/internal/domain"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// CheckGate decides whether actor may act on ticket at level. It never
// mutates the ticket. Checks run in a fixed order: eligibility before state
// so an unauthorized caller learns nothing about the ticket, then
// duplication and the approver lock. State precedes duplication, so a repeat
// approval at a level the ticket has already passed reports InvalidState;
// DuplicateApproval fires only when history records the level while the
// status still waits on it.
func CheckGate(actor domain.Actor, ticket *domain.Ticket, level domain.ApprovalLevel) error {
	if ticket == nil {
		return apperrors.NewNotFound("ticket", nil)
	}

	if !actor.Role.CanApprove(level) {
		details := map[string]any{
			"role":          actor.Role.String(),
			"approvalLevel": int(level),
		}
		if required, ok := domain.ApproverRoleFor(level); ok {
			details["requiredRole"] = required.String()
		}
		return apperrors.NewForbidden("User does not have approval rights for this ticket", details)
	}

	required, ok := level.RequiredStatus()
	if !ok {
		return apperrors.NewInvalidLevel(int(level))
	}
	if ticket.ApprovalStatus != required {
		return apperrors.NewInvalidState(string(ticket.ApprovalStatus), string(required))
	}

	if ticket.HasApproval(level) {
		return apperrors.NewDuplicateApproval(int(level))
	}

	if ticket.CurrentApprover != nil && *ticket.CurrentApprover != actor.ID {
		return apperrors.NewConcurrentApproval(*ticket.CurrentApprover)
	}
	return nil
}

// HoldsLock reports whether actor already owns the approver lock.
func HoldsLock(actor domain.Actor, ticket *domain.Ticket) bool {
	return ticket.CurrentApprover != nil && *ticket.CurrentApprover == actor.ID
}

// PendingLevel is the level a ticket is currently waiting on, derived from
// its approval status. Terminal tickets report the level they stopped at.
func PendingLevel(ticket *domain.Ticket) domain.ApprovalLevel {
	if ticket.ApprovalStatus == domain.ApprovalStatusLevel1Approved {
		return domain.ApprovalLevelCTO
	}
	if ticket.ApprovalStatus == domain.ApprovalStatusPending {
		return domain.ApprovalLevelManager
	}
	if ticket.ApprovalLevel.Valid() {
		return ticket.ApprovalLevel
	}
	return domain.ApprovalLevelManager
}
