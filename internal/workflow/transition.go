package workflow

import (
	"strings"
	"time"

	"github.com/deskflow/itsm-approvals/internal/domain"
	apperrors "github.com/deskflow/itsm-approvals/pkg/util/errorutil"
)

// ValidateApproval checks approve input before any state is touched.
func ValidateApproval(level domain.ApprovalLevel, comments string) error {
	if strings.TrimSpace(comments) == "" {
		return apperrors.NewMissingComments("approval")
	}
	if !level.Valid() {
		return apperrors.NewInvalidLevel(int(level))
	}
	return nil
}

// ValidateRejection checks reject input before any state is touched.
func ValidateRejection(reason, comments string) error {
	if strings.TrimSpace(reason) == "" {
		return apperrors.NewMissingReason()
	}
	if strings.TrimSpace(comments) == "" {
		return apperrors.NewMissingComments("rejection")
	}
	return nil
}

// ApplyApproval records an approval at level. A level-1 approval moves the
// ticket to the CTO stage and restarts its escalation clock; a level-2
// approval finishes the chain.
func ApplyApproval(ticket *domain.Ticket, level domain.ApprovalLevel, approverID, comments string, now time.Time) error {
	if err := ValidateApproval(level, comments); err != nil {
		return err
	}

	switch level {
	case domain.ApprovalLevelManager:
		ticket.ApprovalStatus = domain.ApprovalStatusLevel1Approved
		ticket.Status = domain.TicketStatusPending
		ticket.ApprovalLevel = domain.ApprovalLevelCTO
		ticket.EscalationLevel = 0
		ticket.EscalationReason = nil
		reminder := now
		ticket.LastApprovalReminder = &reminder
	case domain.ApprovalLevelCTO:
		ticket.ApprovalStatus = domain.ApprovalStatusLevel2Approved
		ticket.Status = domain.TicketStatusApproved
	}
	ticket.CurrentApprover = nil

	approver := approverID
	ticket.ApprovalHistory = append(ticket.ApprovalHistory, domain.ApprovalEntry{
		Level:     level,
		Approver:  &approver,
		Status:    domain.HistoryStatusApproved,
		Comments:  strings.TrimSpace(comments),
		Timestamp: now,
	})
	return nil
}

// ApplyRejection ends the chain. The history entry carries the ticket's own
// approval level, not whatever the caller asked for.
func ApplyRejection(ticket *domain.Ticket, reason, comments, approverID string, now time.Time) error {
	if err := ValidateRejection(reason, comments); err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	ticket.Status = domain.TicketStatusRejected
	ticket.ApprovalStatus = domain.ApprovalStatusRejected
	ticket.RejectionReason = &reason
	ticket.CurrentApprover = nil

	approver := approverID
	entryReason := reason
	ticket.ApprovalHistory = append(ticket.ApprovalHistory, domain.ApprovalEntry{
		Level:           ticket.ApprovalLevel,
		Approver:        &approver,
		Status:          domain.HistoryStatusRejected,
		Comments:        strings.TrimSpace(comments),
		RejectionReason: &entryReason,
		Timestamp:       now,
	})
	return nil
}

// ReleaseLock drops the approver lock without recording anything. Used by
// admins to recover tickets stuck behind an absent approver.
func ReleaseLock(ticket *domain.Ticket) bool {
	if ticket.CurrentApprover == nil {
		return false
	}
	ticket.CurrentApprover = nil
	return true
}
