package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/routing"
)

// UnassignedDepartment labels spend of submitters without a department
const UnassignedDepartment = "Unassigned"

// ErrStorageUnavailable is returned by Archive when no file storage is configured
var ErrStorageUnavailable = errors.New("report storage is not configured")

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// ReportService aggregates expenses for dashboards and exports
type ReportService interface {
	Summary(ctx context.Context) (*port.Summary, error)
	CategoryBreakdown(ctx context.Context) ([]port.BreakdownEntry, error)
	DepartmentBreakdown(ctx context.Context) ([]port.BreakdownEntry, error)
	ApproverStats(ctx context.Context, approverID string) (*port.ApproverStats, error)
	MonthlyTrend(ctx context.Context, year int) ([]port.MonthlyTotal, error)
	Build(ctx context.Context) (*port.ExpenseReport, error)
	Export(ctx context.Context, w io.Writer) error
	Archive(ctx context.Context) (string, error)
	ContentType() string
	Extension() string
}

type reportServiceImpl struct {
	router       *routing.Router
	expenseRepo  port.ExpenseRepository
	approvalRepo port.ApprovalRepository
	userRepo     port.UserRepository
	converter    port.CurrencyConverter
	writer       port.ReportWriter
	storage      port.FileStorage
	logger       Logger
	now          func() time.Time
}

// NewReportService creates a new ReportService. storage may be nil, which disables Archive.
func NewReportService(
	router *routing.Router,
	repos port.Repositories,
	converter port.CurrencyConverter,
	writer port.ReportWriter,
	storage port.FileStorage,
	logger Logger,
) ReportService {
	return &reportServiceImpl{
		router:       router,
		expenseRepo:  repos.Expenses,
		approvalRepo: repos.Approvals,
		userRepo:     repos.Users,
		converter:    converter,
		writer:       writer,
		storage:      storage,
		logger:       logger,
		now:          time.Now,
	}
}

// Summary totals every expense per status in the reporting currency
func (s *reportServiceImpl) Summary(ctx context.Context) (*port.Summary, error) {
	expenses, err := s.allExpenses(ctx)
	if err != nil {
		return nil, err
	}
	return s.summarize(expenses), nil
}

// CategoryBreakdown splits approved spend by category
func (s *reportServiceImpl) CategoryBreakdown(ctx context.Context) ([]port.BreakdownEntry, error) {
	expenses, err := s.allExpenses(ctx)
	if err != nil {
		return nil, err
	}
	return breakdown(approved(expenses), func(e *entity.Expense) string { return e.Category }), nil
}

// DepartmentBreakdown splits approved spend by the submitter's department
func (s *reportServiceImpl) DepartmentBreakdown(ctx context.Context) ([]port.BreakdownEntry, error) {
	expenses, err := s.allExpenses(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.usersByID(ctx)
	if err != nil {
		return nil, err
	}
	return breakdown(approved(expenses), func(e *entity.Expense) string {
		return departmentOf(users[e.UserID])
	}), nil
}

// ApproverStats counts the decisions assigned to an approver
func (s *reportServiceImpl) ApproverStats(ctx context.Context, approverID string) (*port.ApproverStats, error) {
	if _, err := s.userRepo.GetByID(ctx, approverID); err != nil {
		return nil, err
	}
	approvals, err := s.approvalRepo.ListByApprover(ctx, approverID)
	if err != nil {
		s.logger.Error("Failed to list approvals", "error", err, "approver_id", approverID)
		return nil, err
	}

	stats := &port.ApproverStats{ApproverID: approverID}
	for _, a := range approvals {
		switch a.Status {
		case entity.ApprovalStatusPending:
			stats.Pending++
		case entity.ApprovalStatusApproved:
			stats.Approved++
		case entity.ApprovalStatusRejected:
			stats.Rejected++
		}
	}
	return stats, nil
}

// MonthlyTrend returns approved spend per month of year, by expense date
func (s *reportServiceImpl) MonthlyTrend(ctx context.Context, year int) ([]port.MonthlyTotal, error) {
	if year < 1 {
		return nil, &ValidationError{Field: "year", Message: fmt.Sprintf("invalid year %d", year)}
	}
	expenses, err := s.allExpenses(ctx)
	if err != nil {
		return nil, err
	}
	return trend(approved(expenses), year), nil
}

// Build assembles the full report rendered by Export
func (s *reportServiceImpl) Build(ctx context.Context) (*port.ExpenseReport, error) {
	expenses, err := s.allExpenses(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.usersByID(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	report := &port.ExpenseReport{
		GeneratedAt: now,
		Summary:     s.summarize(expenses),
		Categories:  breakdown(approved(expenses), func(e *entity.Expense) string { return e.Category }),
		Departments: breakdown(approved(expenses), func(e *entity.Expense) string {
			return departmentOf(users[e.UserID])
		}),
		Trend: trend(approved(expenses), now.Year()),
		Rows:  make([]port.ReportRow, 0, len(expenses)),
	}

	for _, e := range expenses {
		row := port.ReportRow{
			Expense:    e,
			Department: departmentOf(users[e.UserID]),
			Flagged:    s.router.IsFlagged(e),
		}
		if u := users[e.UserID]; u != nil {
			row.Submitter = u.Name
		}
		if e.Status == entity.ExpenseStatusPending {
			chain, err := s.approvalRepo.GetByExpenseID(ctx, e.ID)
			if err != nil {
				return nil, fmt.Errorf("load approvals: %w", err)
			}
			row.ActiveLevel = routing.ActiveLevel(chain)
		}
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

// Export renders the report into w
func (s *reportServiceImpl) Export(ctx context.Context, w io.Writer) error {
	report, err := s.Build(ctx)
	if err != nil {
		return err
	}
	if err := s.writer.Write(ctx, w, report); err != nil {
		s.logger.Error("Failed to write report", "error", err)
		return fmt.Errorf("write report: %w", err)
	}
	s.logger.Info("Report exported", "rows", len(report.Rows))
	return nil
}

// Archive renders the report into file storage and returns its full path
func (s *reportServiceImpl) Archive(ctx context.Context) (string, error) {
	if s.storage == nil {
		return "", ErrStorageUnavailable
	}

	var buf bytes.Buffer
	if err := s.Export(ctx, &buf); err != nil {
		return "", err
	}

	name := fmt.Sprintf("expense-report-%s%s", s.now().Format("20060102-150405"), s.writer.Extension())
	if err := s.storage.Save(ctx, name, buf.Bytes()); err != nil {
		s.logger.Error("Failed to archive report", "error", err, "file", name)
		return "", fmt.Errorf("save report: %w", err)
	}

	path := s.storage.GetFullPath(name)
	s.logger.Info("Report archived", "path", path)
	return path, nil
}

func (s *reportServiceImpl) ContentType() string { return s.writer.ContentType() }

func (s *reportServiceImpl) Extension() string { return s.writer.Extension() }

func (s *reportServiceImpl) allExpenses(ctx context.Context) ([]*entity.Expense, error) {
	expenses, err := s.expenseRepo.List(ctx, port.ExpenseFilter{})
	if err != nil {
		s.logger.Error("Failed to list expenses", "error", err)
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

func (s *reportServiceImpl) usersByID(ctx context.Context) (map[string]*entity.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list users", "error", err)
		return nil, fmt.Errorf("list users: %w", err)
	}
	byID := make(map[string]*entity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func (s *reportServiceImpl) summarize(expenses []*entity.Expense) *port.Summary {
	statuses := []entity.ExpenseStatus{
		entity.ExpenseStatusDraft,
		entity.ExpenseStatusPending,
		entity.ExpenseStatusApproved,
		entity.ExpenseStatusRejected,
	}
	counts := make(map[entity.ExpenseStatus]int, len(statuses))
	amounts := make(map[entity.ExpenseStatus]decimal.Decimal, len(statuses))
	total, flagged := decimal.Zero, decimal.Zero

	summary := &port.Summary{Currency: s.converter.ReportingCurrency()}
	for _, e := range expenses {
		amount := decimal.NewFromFloat(e.ConvertedAmount)
		counts[e.Status]++
		amounts[e.Status] = amounts[e.Status].Add(amount)
		total = total.Add(amount)
		if s.router.IsFlagged(e) {
			summary.FlaggedCount++
			flagged = flagged.Add(amount)
		}
	}

	summary.TotalCount = len(expenses)
	summary.TotalAmount = total.Round(2).InexactFloat64()
	summary.FlaggedAmount = flagged.Round(2).InexactFloat64()
	for _, status := range statuses {
		summary.ByStatus = append(summary.ByStatus, port.StatusTotal{
			Status: status,
			Count:  counts[status],
			Amount: amounts[status].Round(2).InexactFloat64(),
		})
	}
	return summary
}

func approved(expenses []*entity.Expense) []*entity.Expense {
	out := make([]*entity.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.Status == entity.ExpenseStatusApproved {
			out = append(out, e)
		}
	}
	return out
}

// breakdown groups expenses by key, largest amount first, with percentages of the total
func breakdown(expenses []*entity.Expense, keyOf func(*entity.Expense) string) []port.BreakdownEntry {
	type bucket struct {
		count  int
		amount decimal.Decimal
	}
	buckets := make(map[string]*bucket)
	total := decimal.Zero
	for _, e := range expenses {
		key := keyOf(e)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		amount := decimal.NewFromFloat(e.ConvertedAmount)
		b.count++
		b.amount = b.amount.Add(amount)
		total = total.Add(amount)
	}

	entries := make([]port.BreakdownEntry, 0, len(buckets))
	for key, b := range buckets {
		entry := port.BreakdownEntry{
			Key:    key,
			Count:  b.count,
			Amount: b.amount.Round(2).InexactFloat64(),
		}
		if total.IsPositive() {
			entry.Percentage = b.amount.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Amount != entries[j].Amount {
			return entries[i].Amount > entries[j].Amount
		}
		return entries[i].Key < entries[j].Key
	})
	return entries
}

func trend(expenses []*entity.Expense, year int) []port.MonthlyTotal {
	var amounts [12]decimal.Decimal
	var counts [12]int
	for _, e := range expenses {
		if e.ExpenseDate.Year() != year {
			continue
		}
		m := int(e.ExpenseDate.Month()) - 1
		amounts[m] = amounts[m].Add(decimal.NewFromFloat(e.ConvertedAmount))
		counts[m]++
	}

	out := make([]port.MonthlyTotal, 12)
	for i := range out {
		out[i] = port.MonthlyTotal{
			Month:  monthNames[i],
			Count:  counts[i],
			Amount: amounts[i].Round(2).InexactFloat64(),
		}
	}
	return out
}

func departmentOf(u *entity.User) string {
	if u == nil || u.Department == "" {
		return UnassignedDepartment
	}
	return u.Department
}
