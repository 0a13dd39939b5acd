package entity

import "time"

// ExpenseHistory is one entry of an expense's audit trail
type ExpenseHistory struct {
	ID             int64         `json:"id"`
	ExpenseID      string        `json:"expense_id"`
	ActorID        string        `json:"actor_id"`
	Action         string        `json:"action"`
	Level          int           `json:"level,omitempty"`
	PreviousStatus ExpenseStatus `json:"previous_status"`
	NewStatus      ExpenseStatus `json:"new_status"`
	Comment        string        `json:"comment,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}
