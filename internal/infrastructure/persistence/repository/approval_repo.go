package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/sqlite"
)

const approvalColumns = `id, expense_id, approver_id, role, status, comment, level, created_at, decided_at`

// ApprovalRepository implements port.ApprovalRepository on SQLite
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts every approval of a chain. Callers wrap it in a transaction
// so a partial chain is never visible.
func (r *ApprovalRepository) CreateBatch(ctx context.Context, approvals []*entity.Approval) error {
	query := `INSERT INTO approvals (` + approvalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	exec := sqlite.Conn(ctx, r.db)

	for _, a := range approvals {
		_, err := exec.ExecContext(ctx, query,
			a.ID,
			a.ExpenseID,
			a.ApproverID,
			a.Role,
			a.Status,
			a.Comment,
			a.Level,
			a.CreatedAt,
			nullTime(a.DecidedAt),
		)
		if err != nil {
			r.logger.Error("Failed to create approval",
				zap.String("expense_id", a.ExpenseID),
				zap.Int("level", a.Level),
				zap.Error(err))
			return fmt.Errorf("failed to create approval level %d: %w", a.Level, err)
		}
	}
	return nil
}

// GetByExpenseID returns the chain of an expense ordered by level
func (r *ApprovalRepository) GetByExpenseID(ctx context.Context, expenseID string) ([]*entity.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE expense_id = ? ORDER BY level`
	return r.query(ctx, query, expenseID)
}

// ListByApprover returns every approval assigned to approverID, newest first
func (r *ApprovalRepository) ListByApprover(ctx context.Context, approverID string) ([]*entity.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals WHERE approver_id = ? ORDER BY created_at DESC, level`
	return r.query(ctx, query, approverID)
}

// Update stores the decision fields of an approval
func (r *ApprovalRepository) Update(ctx context.Context, a *entity.Approval) error {
	query := `
		UPDATE approvals
		SET approver_id = ?, status = ?, comment = ?, decided_at = ?
		WHERE id = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		a.ApproverID,
		a.Status,
		a.Comment,
		nullTime(a.DecidedAt),
		a.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.String("approval_id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}
	return requireAffected(result)
}

func (r *ApprovalRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Approval, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query approvals", zap.Error(err))
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		var a entity.Approval
		var decidedAt sql.NullTime
		if err := rows.Scan(
			&a.ID,
			&a.ExpenseID,
			&a.ApproverID,
			&a.Role,
			&a.Status,
			&a.Comment,
			&a.Level,
			&a.CreatedAt,
			&decidedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		if decidedAt.Valid {
			a.DecidedAt = &decidedAt.Time
		}
		approvals = append(approvals, &a)
	}
	return approvals, rows.Err()
}
