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

const userColumns = `id, name, email, role, manager_id, department, status, created_at`

// UserRepository implements port.UserRepository on SQLite
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB, logger *zap.Logger) port.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a user
func (r *UserRepository) Create(ctx context.Context, user *entity.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Role,
		user.ManagerID,
		user.Department,
		user.Status,
		user.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create user", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	users, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, port.ErrNotFound
	}
	return users[0], nil
}

// List returns every user ordered by name
func (r *UserRepository) List(ctx context.Context) ([]*entity.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
}

// ListByRole returns the users holding role in creation order
func (r *UserRepository) ListByRole(ctx context.Context, role entity.Role) ([]*entity.User, error) {
	return r.query(ctx, `SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY created_at, id`, role)
}

// UpdateStatus activates or deactivates a user
func (r *UserRepository) UpdateStatus(ctx context.Context, id string, status entity.UserStatus) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, `UPDATE users SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		r.logger.Error("Failed to update user status", zap.String("user_id", id), zap.Error(err))
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return requireAffected(result)
}

func (r *UserRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.User, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query users", zap.Error(err))
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		var u entity.User
		if err := rows.Scan(
			&u.ID,
			&u.Name,
			&u.Email,
			&u.Role,
			&u.ManagerID,
			&u.Department,
			&u.Status,
			&u.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
