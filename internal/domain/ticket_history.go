package domain

import "time"

// HistoryStatus records what happened in an approval history entry.
type HistoryStatus string

const (
	HistoryStatusApproved  HistoryStatus = "Approved"
	HistoryStatusRejected  HistoryStatus = "Rejected"
	HistoryStatusEscalated HistoryStatus = "Escalated"
)

// ApprovalEntry is an immutable approval trail entry. Entries are only ever appended.
type ApprovalEntry struct {
	Level            ApprovalLevel `json:"level"`
	Approver         *string       `json:"approver"`
	Status           HistoryStatus `json:"status"`
	Comments         string        `json:"comments"`
	RejectionReason  *string       `json:"rejectionReason,omitempty"`
	EscalationLevel  *int          `json:"escalationLevel,omitempty"`
	EscalationReason *string       `json:"escalationReason,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
}

func (e ApprovalEntry) clone() ApprovalEntry {
	cp := e
	cp.Approver = cloneString(e.Approver)
	cp.RejectionReason = cloneString(e.RejectionReason)
	cp.EscalationReason = cloneString(e.EscalationReason)
	if e.EscalationLevel != nil {
		lvl := *e.EscalationLevel
		cp.EscalationLevel = &lvl
	}
	return cp
}
