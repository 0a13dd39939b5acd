package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/sqlite"
)

const expenseColumns = `id, user_id, amount, currency, converted_amount, category, description,
	receipt_url, status, expense_date, created_at, updated_at`

// ExpenseRepository implements port.ExpenseRepository on SQLite
type ExpenseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExpenseRepository creates a new expense repository
func NewExpenseRepository(db *sql.DB, logger *zap.Logger) port.ExpenseRepository {
	return &ExpenseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new expense
func (r *ExpenseRepository) Create(ctx context.Context, expense *entity.Expense) error {
	query := `INSERT INTO expenses (` + expenseColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		expense.ID,
		expense.UserID,
		expense.Amount,
		expense.Currency,
		expense.ConvertedAmount,
		expense.Category,
		expense.Description,
		expense.ReceiptURL,
		expense.Status,
		expense.ExpenseDate,
		expense.CreatedAt,
		expense.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create expense", zap.String("expense_id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// GetByID retrieves an expense by ID
func (r *ExpenseRepository) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

	expense, err := scanExpense(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get expense", zap.String("expense_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// Update overwrites the mutable fields of an expense
func (r *ExpenseRepository) Update(ctx context.Context, expense *entity.Expense) error {
	query := `
		UPDATE expenses
		SET amount = ?, currency = ?, converted_amount = ?, category = ?, description = ?,
			receipt_url = ?, status = ?, expense_date = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		expense.Amount,
		expense.Currency,
		expense.ConvertedAmount,
		expense.Category,
		expense.Description,
		expense.ReceiptURL,
		expense.Status,
		expense.ExpenseDate,
		expense.UpdatedAt,
		expense.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update expense", zap.String("expense_id", expense.ID), zap.Error(err))
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireAffected(result)
}

// List returns expenses matching the filter, newest first
func (r *ExpenseRepository) List(ctx context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error) {
	var where []string
	var args []interface{}

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list expenses", zap.Error(err))
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*entity.Expense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(row rowScanner) (*entity.Expense, error) {
	var e entity.Expense
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Amount,
		&e.Currency,
		&e.ConvertedAmount,
		&e.Category,
		&e.Description,
		&e.ReceiptURL,
		&e.Status,
		&e.ExpenseDate,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return port.ErrNotFound
	}
	return nil
}
