package port

import (
	"time"

	"github.com/garyjia/expense-router/internal/domain/entity"
)

// StatusTotal aggregates expenses sharing one status
type StatusTotal struct {
	Status entity.ExpenseStatus `json:"status"`
	Count  int                  `json:"count"`
	Amount float64              `json:"amount"`
}

// Summary is the dashboard overview in the reporting currency
type Summary struct {
	Currency      string        `json:"currency"`
	TotalCount    int           `json:"total_count"`
	TotalAmount   float64       `json:"total_amount"`
	ByStatus      []StatusTotal `json:"by_status"`
	FlaggedCount  int           `json:"flagged_count"`
	FlaggedAmount float64       `json:"flagged_amount"`
}

// BreakdownEntry is one slice of an approved-spend breakdown
type BreakdownEntry struct {
	Key        string  `json:"key"`
	Count      int     `json:"count"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// ApproverStats counts the decisions assigned to one approver
type ApproverStats struct {
	ApproverID string `json:"approver_id"`
	Pending    int    `json:"pending"`
	Approved   int    `json:"approved"`
	Rejected   int    `json:"rejected"`
}

// MonthlyTotal is approved spend for one calendar month
type MonthlyTotal struct {
	Month  string  `json:"month"`
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// ReportRow is one expense line of an exported report
type ReportRow struct {
	Expense     *entity.Expense
	Submitter   string
	Department  string
	Flagged     bool
	ActiveLevel int
}

// ExpenseReport is everything an exporter renders
type ExpenseReport struct {
	GeneratedAt time.Time
	Summary     *Summary
	Categories  []BreakdownEntry
	Departments []BreakdownEntry
	Trend       []MonthlyTotal
	Rows        []ReportRow
}
