package entity

import "time"

// Approval is one level of an expense's approval chain
type Approval struct {
	ID         string         `json:"id"`
	ExpenseID  string         `json:"expense_id"`
	ApproverID string         `json:"approver_id"`
	Role       Role           `json:"role"`
	Status     ApprovalStatus `json:"status"`
	Comment    string         `json:"comment,omitempty"`
	Level      int            `json:"level"`
	CreatedAt  time.Time      `json:"created_at"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
}

// Clone returns a deep copy of the approval
func (a *Approval) Clone() *Approval {
	if a == nil {
		return nil
	}
	c := *a
	if a.DecidedAt != nil {
		t := *a.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}
