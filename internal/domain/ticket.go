package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "Open"
	TicketStatusPending  TicketStatus = "Pending"
	TicketStatusApproved TicketStatus = "Approved"
	TicketStatusRejected TicketStatus = "Rejected"
)

// ApprovalStatus tracks progress through the approval chain.
type ApprovalStatus string

const (
	ApprovalStatusPending        ApprovalStatus = "Pending"
	ApprovalStatusLevel1Approved ApprovalStatus = "Level1 Approved"
	ApprovalStatusLevel2Approved ApprovalStatus = "Level2 Approved"
	ApprovalStatusRejected       ApprovalStatus = "Rejected"
)

// Terminal reports whether no further approval action is possible.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalStatusLevel2Approved || s == ApprovalStatusRejected
}

// ApprovalLevel is the stage of the approval chain.
type ApprovalLevel int

const (
	ApprovalLevelManager ApprovalLevel = 1
	ApprovalLevelCTO     ApprovalLevel = 2
)

// Valid reports whether the level exists.
func (l ApprovalLevel) Valid() bool {
	return l == ApprovalLevelManager || l == ApprovalLevelCTO
}

// RequiredStatus is the approval status a ticket must be in before this level can act.
func (l ApprovalLevel) RequiredStatus() (ApprovalStatus, bool) {
	switch l {
	case ApprovalLevelManager:
		return ApprovalStatusPending, true
	case ApprovalLevelCTO:
		return ApprovalStatusLevel1Approved, true
	}
	return "", false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "Low"
	TicketPriorityMedium TicketPriority = "Medium"
	TicketPriorityHigh   TicketPriority = "High"
)

// DefaultApprovalTimeoutHours applies when a ticket does not set its own timeout.
const DefaultApprovalTimeoutHours = 24

// Ticket is the aggregate for ITSM requests going through approval.
type Ticket struct {
	ID                   string
	Title                string
	Description          string
	Type                 string
	Priority             TicketPriority
	Status               TicketStatus
	ApprovalStatus       ApprovalStatus
	ApprovalLevel        ApprovalLevel
	CurrentApprover      *string
	ApprovalHistory      []ApprovalEntry
	RejectionReason      *string
	EscalationLevel      int
	EscalationReason     *string
	LastApprovalReminder *time.Time
	ApprovalTimeoutHours int
	CreatedBy            string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// NewTicket returns a freshly submitted ticket awaiting level-1 approval.
func NewTicket(createdBy, title, description, ticketType string, priority TicketPriority) *Ticket {
	if priority == "" {
		priority = TicketPriorityMedium
	}
	return &Ticket{
		Title:                title,
		Description:          description,
		Type:                 ticketType,
		Priority:             priority,
		Status:               TicketStatusOpen,
		ApprovalStatus:       ApprovalStatusPending,
		ApprovalLevel:        ApprovalLevelManager,
		ApprovalHistory:      []ApprovalEntry{},
		ApprovalTimeoutHours: DefaultApprovalTimeoutHours,
		CreatedBy:            createdBy,
	}
}

// HasApproval reports whether history already records an approval at level.
func (t *Ticket) HasApproval(level ApprovalLevel) bool {
	for _, entry := range t.ApprovalHistory {
		if entry.Level == level && entry.Status == HistoryStatusApproved {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	cp := *t
	cp.CurrentApprover = cloneString(t.CurrentApprover)
	cp.RejectionReason = cloneString(t.RejectionReason)
	cp.EscalationReason = cloneString(t.EscalationReason)
	if t.LastApprovalReminder != nil {
		ts := *t.LastApprovalReminder
		cp.LastApprovalReminder = &ts
	}
	cp.ApprovalHistory = make([]ApprovalEntry, len(t.ApprovalHistory))
	for i, entry := range t.ApprovalHistory {
		cp.ApprovalHistory[i] = entry.clone()
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
