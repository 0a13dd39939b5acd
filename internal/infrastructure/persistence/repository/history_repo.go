package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository on SQLite
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an entry to the audit trail
func (r *HistoryRepository) Create(ctx context.Context, history *entity.ExpenseHistory) error {
	query := `
		INSERT INTO expense_history (
			expense_id, actor_id, action, level, previous_status, new_status, comment, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now()
	}

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		history.ExpenseID,
		history.ActorID,
		history.Action,
		history.Level,
		history.PreviousStatus,
		history.NewStatus,
		history.Comment,
		history.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.String("expense_id", history.ExpenseID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByExpenseID returns the audit trail of an expense in insertion order
func (r *HistoryRepository) GetByExpenseID(ctx context.Context, expenseID string) ([]*entity.ExpenseHistory, error) {
	query := `
		SELECT id, expense_id, actor_id, action, level, previous_status, new_status, comment, timestamp
		FROM expense_history
		WHERE expense_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, expenseID)
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("expense_id", expenseID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.ExpenseHistory
	for rows.Next() {
		var h entity.ExpenseHistory
		if err := rows.Scan(
			&h.ID,
			&h.ExpenseID,
			&h.ActorID,
			&h.Action,
			&h.Level,
			&h.PreviousStatus,
			&h.NewStatus,
			&h.Comment,
			&h.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		records = append(records, &h)
	}
	return records, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
