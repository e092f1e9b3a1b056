package workflow

import (
	"time"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

// EscalationAction is what the sweep should do with a ticket on this tick.
type EscalationAction int

const (
	EscalationNone EscalationAction = iota
	EscalationRemind
	EscalationReassign
)

func (a EscalationAction) String() string {
	switch a {
	case EscalationRemind:
		return "remind"
	case EscalationReassign:
		return "reassign"
	default:
		return "none"
	}
}

const (
	ReasonInitialReminder = "Initial reminder"
	ReasonTimeout         = "Escalated due to timeout"
	commentTimedOut       = "Approval timed out"
)

// AwaitingApproval reports whether the sweep should look at the ticket at all.
func AwaitingApproval(ticket *domain.Ticket) bool {
	return ticket.Status != domain.TicketStatusRejected && !ticket.ApprovalStatus.Terminal()
}

// HoursSinceReminder measures idle time from the last reminder, or from
// creation when no reminder was sent yet.
func HoursSinceReminder(ticket *domain.Ticket, now time.Time) float64 {
	since := ticket.CreatedAt
	if ticket.LastApprovalReminder != nil {
		since = *ticket.LastApprovalReminder
	}
	return now.Sub(since).Hours()
}

// NextEscalation decides the sweep action. Escalation level 2 and above is
// left to manual intervention.
func NextEscalation(ticket *domain.Ticket, now time.Time) EscalationAction {
	if !AwaitingApproval(ticket) {
		return EscalationNone
	}
	timeout := ticket.ApprovalTimeoutHours
	if timeout <= 0 {
		timeout = domain.DefaultApprovalTimeoutHours
	}
	if HoursSinceReminder(ticket, now) < float64(timeout) {
		return EscalationNone
	}
	switch ticket.EscalationLevel {
	case 0:
		return EscalationRemind
	case 1:
		return EscalationReassign
	default:
		return EscalationNone
	}
}

// ApplyReminder marks the first escalation step.
func ApplyReminder(ticket *domain.Ticket, now time.Time) {
	ts := now
	reason := ReasonInitialReminder
	ticket.LastApprovalReminder = &ts
	ticket.EscalationLevel = 1
	ticket.EscalationReason = &reason
}

// ApplyEscalation hands the approver lock to nextApprover and records the
// hand-off against whoever held it before (possibly nobody).
func ApplyEscalation(ticket *domain.Ticket, nextApprover string, now time.Time) {
	prior := ticket.CurrentApprover
	next := nextApprover
	reason := ReasonTimeout
	level := 2

	ticket.CurrentApprover = &next
	ticket.EscalationLevel = level
	ticket.EscalationReason = &reason

	entryReason := reason
	ticket.ApprovalHistory = append(ticket.ApprovalHistory, domain.ApprovalEntry{
		Level:            ticket.ApprovalLevel,
		Approver:         prior,
		Status:           domain.HistoryStatusEscalated,
		Comments:         commentTimedOut,
		EscalationLevel:  &level,
		EscalationReason: &entryReason,
		Timestamp:        now,
	})
}
