package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/deskflow/itsm-approvals/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventTicketApproved    EventType = "ticket_approved"
	EventTicketRejected    EventType = "ticket_rejected"
	EventApprovalReminder  EventType = "approval_reminder"
	EventApprovalEscalated EventType = "approval_escalated"
	EventApprovalReleased  EventType = "approval_released"
)

// Actor encapsulates actor metadata for an event. A nil UserID means the
// system (escalation sweep) acted.
type Actor struct {
	UserID *string     `json:"user_id,omitempty"`
	Role   domain.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	TicketID  string        `json:"ticket_id"`
	Actor     Actor         `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
	Ticket    domain.Ticket `json:"ticket"`
	Payload   any           `json:"payload"`
}

// NewEvent stamps a fresh event id.
func NewEvent(eventType EventType, ticket *domain.Ticket, actor Actor, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Actor:     actor,
		Timestamp: at,
		Ticket:    *ticket.Clone(),
		Payload:   payload,
	}
}

// ApprovedPayload payload.
type ApprovedPayload struct {
	Level    domain.ApprovalLevel `json:"level"`
	Approver string               `json:"approver"`
	Comments string               `json:"comments"`
}

// RejectedPayload payload.
type RejectedPayload struct {
	Level    domain.ApprovalLevel `json:"level"`
	Approver string               `json:"approver"`
	Reason   string               `json:"reason"`
	Comments string               `json:"comments"`
}

// ReminderPayload lists who should be reminded.
type ReminderPayload struct {
	Recipients []domain.User `json:"recipients"`
}

// EscalatedPayload names the approver the ticket was handed to.
type EscalatedPayload struct {
	PreviousApprover *string     `json:"previous_approver,omitempty"`
	NewApprover      domain.User `json:"new_approver"`
}
