package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

// Dataset is a consistent set of users, expenses and their approval chains
type Dataset struct {
	Users     []*entity.User
	Expenses  []*entity.Expense
	Approvals []*entity.Approval
	History   []*entity.ExpenseHistory
}

// Load writes the dataset in one transaction
func (d *Dataset) Load(ctx context.Context, repos port.Repositories) error {
	return repos.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, u := range d.Users {
			if err := repos.Users.Create(ctx, u); err != nil {
				return fmt.Errorf("failed to seed user %s: %w", u.ID, err)
			}
		}
		for _, e := range d.Expenses {
			if err := repos.Expenses.Create(ctx, e); err != nil {
				return fmt.Errorf("failed to seed expense %s: %w", e.ID, err)
			}
		}
		if err := repos.Approvals.CreateBatch(ctx, d.Approvals); err != nil {
			return fmt.Errorf("failed to seed approvals: %w", err)
		}
		for _, h := range d.History {
			if err := repos.History.Create(ctx, h); err != nil {
				return fmt.Errorf("failed to seed history for %s: %w", h.ExpenseID, err)
			}
		}
		return nil
	})
}

// DemoDataset returns the demo organisation: one admin, one manager and three employees
// with expenses in every status. Chains follow the default rule set.
func DemoDataset() *Dataset {
	ts := func(s string) time.Time {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			panic(err)
		}
		return t
	}
	day := func(s string) time.Time {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			panic(err)
		}
		return t
	}
	decided := func(s string) *time.Time {
		t := ts(s)
		return &t
	}

	created := ts("2025-09-01T08:00:00Z")
	users := []*entity.User{
		{ID: "1", Name: "Admin User", Email: "admin@monex.com", Role: entity.RoleAdmin, Department: "Management", Status: entity.UserStatusActive, CreatedAt: created},
		{ID: "2", Name: "John Manager", Email: "manager@monex.com", Role: entity.RoleManager, Department: "Engineering", Status: entity.UserStatusActive, CreatedAt: created.Add(time.Minute)},
		{ID: "3", Name: "Sarah Employee", Email: "employee@monex.com", Role: entity.RoleEmployee, ManagerID: "2", Department: "Engineering", Status: entity.UserStatusActive, CreatedAt: created.Add(2 * time.Minute)},
		{ID: "4", Name: "Mike Developer", Email: "mike@monex.com", Role: entity.RoleEmployee, ManagerID: "2", Department: "Engineering", Status: entity.UserStatusActive, CreatedAt: created.Add(3 * time.Minute)},
		{ID: "5", Name: "Emma Designer", Email: "emma@monex.com", Role: entity.RoleEmployee, ManagerID: "2", Department: "Design", Status: entity.UserStatusActive, CreatedAt: created.Add(4 * time.Minute)},
	}

	expense := func(id, userID string, amount float64, category, description string, status entity.ExpenseStatus, date, createdAt, updatedAt string) *entity.Expense {
		return &entity.Expense{
			ID:              id,
			UserID:          userID,
			Amount:          amount,
			Currency:        "USD",
			ConvertedAmount: amount,
			Category:        category,
			Description:     description,
			Status:          status,
			ExpenseDate:     day(date),
			CreatedAt:       ts(createdAt),
			UpdatedAt:       ts(updatedAt),
		}
	}

	expenses := []*entity.Expense{
		expense("exp1", "3", 125.50, entity.CategoryFood, "Team lunch at restaurant", entity.ExpenseStatusPending, "2025-10-01", "2025-10-01T10:30:00Z", "2025-10-01T10:30:00Z"),
		expense("exp2", "4", 850.00, entity.CategoryTravel, "Flight tickets for client meeting", entity.ExpenseStatusPending, "2025-09-28", "2025-09-28T14:20:00Z", "2025-09-28T14:20:00Z"),
		expense("exp3", "3", 45.00, entity.CategoryOffice, "Office supplies", entity.ExpenseStatusApproved, "2025-09-25", "2025-09-25T09:15:00Z", "2025-09-25T10:00:00Z"),
		expense("exp4", "5", 320.00, entity.CategorySoftware, "Adobe Creative Cloud subscription", entity.ExpenseStatusApproved, "2025-09-20", "2025-09-20T11:00:00Z", "2025-09-20T12:00:00Z"),
		expense("exp5", "4", 15.00, entity.CategoryFood, "Coffee with client", entity.ExpenseStatusRejected, "2025-09-18", "2025-09-18T16:45:00Z", "2025-09-19T09:00:00Z"),
	}

	approvals := []*entity.Approval{
		{ID: "app1", ExpenseID: "exp1", ApproverID: "2", Role: entity.RoleManager, Status: entity.ApprovalStatusPending, Level: 1, CreatedAt: ts("2025-10-01T10:35:00Z")},
		{ID: "app2", ExpenseID: "exp2", ApproverID: "2", Role: entity.RoleManager, Status: entity.ApprovalStatusPending, Level: 1, CreatedAt: ts("2025-09-28T14:25:00Z")},
		{ID: "app2b", ExpenseID: "exp2", ApproverID: "1", Role: entity.RoleAdmin, Status: entity.ApprovalStatusPending, Level: 2, CreatedAt: ts("2025-09-28T14:25:00Z")},
		{ID: "app3", ExpenseID: "exp3", ApproverID: "2", Role: entity.RoleManager, Status: entity.ApprovalStatusApproved, Comment: "Approved - necessary supplies", Level: 1, CreatedAt: ts("2025-09-25T09:15:00Z"), DecidedAt: decided("2025-09-25T10:00:00Z")},
		{ID: "app4", ExpenseID: "exp4", ApproverID: "2", Role: entity.RoleManager, Status: entity.ApprovalStatusApproved, Comment: "Approved - required for design work", Level: 1, CreatedAt: ts("2025-09-20T11:00:00Z"), DecidedAt: decided("2025-09-20T12:00:00Z")},
		{ID: "app5", ExpenseID: "exp5", ApproverID: "2", Role: entity.RoleManager, Status: entity.ApprovalStatusRejected, Comment: "Personal expense - not eligible", Level: 1, CreatedAt: ts("2025-09-18T16:45:00Z"), DecidedAt: decided("2025-09-19T09:00:00Z")},
	}

	var history []*entity.ExpenseHistory
	for _, e := range expenses {
		history = append(history, &entity.ExpenseHistory{
			ExpenseID:      e.ID,
			ActorID:        e.UserID,
			Action:         entity.ActionSubmit,
			PreviousStatus: entity.ExpenseStatusDraft,
			NewStatus:      entity.ExpenseStatusPending,
			Timestamp:      e.CreatedAt,
		})
	}
	for _, a := range approvals {
		if a.DecidedAt == nil {
			continue
		}
		action, next := entity.ActionApprove, entity.ExpenseStatusApproved
		if a.Status == entity.ApprovalStatusRejected {
			action, next = entity.ActionReject, entity.ExpenseStatusRejected
		}
		history = append(history, &entity.ExpenseHistory{
			ExpenseID:      a.ExpenseID,
			ActorID:        a.ApproverID,
			Action:         action,
			Level:          a.Level,
			PreviousStatus: entity.ExpenseStatusPending,
			NewStatus:      next,
			Comment:        a.Comment,
			Timestamp:      *a.DecidedAt,
		})
	}

	return &Dataset{
		Users:     users,
		Expenses:  expenses,
		Approvals: approvals,
		History:   history,
	}
}
