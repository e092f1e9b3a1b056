package dto

import (
	"time"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Type            string                `json:"type"`
	Priority        domain.TicketPriority `json:"priority"`
	ApprovalTimeout int                   `json:"approvalTimeout"`
}

// ApproveRequest payload. approvalLevel defaults to 1.
type ApproveRequest struct {
	ApprovalLevel int    `json:"approvalLevel"`
	Comments      string `json:"comments"`
}

// RejectRequest payload. approvalLevel is derived from the ticket when omitted.
type RejectRequest struct {
	Reason        string `json:"reason"`
	Comments      string `json:"comments"`
	ApprovalLevel int    `json:"approvalLevel"`
}

// TicketResponse is the full ticket as seen by clients.
type TicketResponse struct {
	ID                   string                 `json:"id"`
	Title                string                 `json:"title"`
	Description          string                 `json:"description"`
	Type                 string                 `json:"type"`
	Priority             domain.TicketPriority  `json:"priority"`
	Status               domain.TicketStatus    `json:"status"`
	ApprovalStatus       domain.ApprovalStatus  `json:"approvalStatus"`
	ApprovalLevel        domain.ApprovalLevel   `json:"approvalLevel"`
	CurrentApprover      *string                `json:"currentApprover"`
	ApprovalHistory      []domain.ApprovalEntry `json:"approvalHistory"`
	RejectionReason      *string                `json:"rejectionReason,omitempty"`
	EscalationLevel      int                    `json:"escalationLevel"`
	EscalationReason     *string                `json:"escalationReason,omitempty"`
	LastApprovalReminder *time.Time             `json:"lastApprovalReminder,omitempty"`
	ApprovalTimeout      int                    `json:"approvalTimeout"`
	CreatedBy            string                 `json:"createdBy"`
	CreatedAt            time.Time              `json:"createdAt"`
	UpdatedAt            time.Time              `json:"updatedAt"`
}

// TicketFromDomain maps the aggregate to its response shape.
func TicketFromDomain(t *domain.Ticket) TicketResponse {
	history := t.ApprovalHistory
	if history == nil {
		history = []domain.ApprovalEntry{}
	}
	return TicketResponse{
		ID:                   t.ID,
		Title:                t.Title,
		Description:          t.Description,
		Type:                 t.Type,
		Priority:             t.Priority,
		Status:               t.Status,
		ApprovalStatus:       t.ApprovalStatus,
		ApprovalLevel:        t.ApprovalLevel,
		CurrentApprover:      t.CurrentApprover,
		ApprovalHistory:      history,
		RejectionReason:      t.RejectionReason,
		EscalationLevel:      t.EscalationLevel,
		EscalationReason:     t.EscalationReason,
		LastApprovalReminder: t.LastApprovalReminder,
		ApprovalTimeout:      t.ApprovalTimeoutHours,
		CreatedBy:            t.CreatedBy,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// TicketsFromDomain maps a list, never returning nil.
func TicketsFromDomain(tickets []domain.Ticket) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, TicketFromDomain(&tickets[i]))
	}
	return out
}
