package port

import (
	"context"
	"errors"

	"github.com/garyjia/expense-router/internal/domain/entity"
)

// ErrNotFound is returned by repositories when the requested record does not exist
var ErrNotFound = errors.New("record not found")

// ExpenseFilter narrows expense listings; zero values mean "any"
type ExpenseFilter struct {
	UserID   string
	Status   entity.ExpenseStatus
	Category string
	Limit    int
	Offset   int
}

// ExpenseRepository defines persistence operations for Expense
type ExpenseRepository interface {
	Create(ctx context.Context, expense *entity.Expense) error
	GetByID(ctx context.Context, id string) (*entity.Expense, error)
	Update(ctx context.Context, expense *entity.Expense) error
	List(ctx context.Context, filter ExpenseFilter) ([]*entity.Expense, error)
}

// ApprovalRepository defines persistence operations for the approvals of a chain
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*entity.Approval) error
	GetByExpenseID(ctx context.Context, expenseID string) ([]*entity.Approval, error)
	Update(ctx context.Context, approval *entity.Approval) error

	// ListByApprover returns every approval assigned to the approver, newest first
	ListByApprover(ctx context.Context, approverID string) ([]*entity.Approval, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	List(ctx context.Context) ([]*entity.User, error)
	ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error)
	UpdateStatus(ctx context.Context, id string, status entity.UserStatus) error
}

// HistoryRepository defines persistence operations for the expense audit trail
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.ExpenseHistory) error
	GetByExpenseID(ctx context.Context, expenseID string) ([]*entity.ExpenseHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories groups every persistence port of one backend
type Repositories struct {
	Tx        TransactionManager
	Expenses  ExpenseRepository
	Approvals ApprovalRepository
	Users     UserRepository
	History   HistoryRepository
}
