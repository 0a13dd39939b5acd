package entity

import "time"

// Expense is a single expense claim submitted by a user
type Expense struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	ConvertedAmount float64       `json:"converted_amount"`
	Category        string        `json:"category"`
	Description     string        `json:"description"`
	ReceiptURL      string        `json:"receipt_url,omitempty"`
	Status          ExpenseStatus `json:"status"`
	ExpenseDate     time.Time     `json:"expense_date"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Clone returns a shallow copy; Expense has no reference fields
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}
