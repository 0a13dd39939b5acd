package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/pkg/utils"
)

// CreateUserRequest carries a new account
type CreateUserRequest struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Role       entity.Role `json:"role"`
	ManagerID  string      `json:"manager_id,omitempty"`
	Department string      `json:"department"`
}

// UserService manages submitter and approver accounts
type UserService interface {
	Create(ctx context.Context, req CreateUserRequest) (*entity.User, error)
	Get(ctx context.Context, id string) (*entity.User, error)
	List(ctx context.Context, role entity.Role) ([]*entity.User, error)
	Deactivate(ctx context.Context, id string) (*entity.User, error)
}

type userServiceImpl struct {
	userRepo port.UserRepository
	logger   Logger
}

// NewUserService creates a new UserService
func NewUserService(userRepo port.UserRepository, logger Logger) UserService {
	return &userServiceImpl{
		userRepo: userRepo,
		logger:   logger,
	}
}

// Create validates and stores a new active user
func (s *userServiceImpl) Create(ctx context.Context, req CreateUserRequest) (*entity.User, error) {
	name := utils.SanitizeString(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	if err := utils.ValidateEmail(email); err != nil {
		return nil, invalid("email", err)
	}
	if !req.Role.IsValid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", req.Role)}
	}

	if req.ManagerID != "" {
		manager, err := s.userRepo.GetByID(ctx, req.ManagerID)
		if err != nil {
			return nil, &ValidationError{Field: "manager_id", Message: fmt.Sprintf("manager %s not found", req.ManagerID)}
		}
		if manager.Role == entity.RoleEmployee {
			return nil, &ValidationError{Field: "manager_id", Message: "manager must hold the manager or admin role"}
		}
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	user := &entity.User{
		ID:         id,
		Name:       name,
		Email:      email,
		Role:       req.Role,
		ManagerID:  req.ManagerID,
		Department: utils.SanitizeString(req.Department),
		Status:     entity.UserStatusActive,
		CreatedAt:  time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		s.logger.Error("Failed to create user", "error", err, "email", email)
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User created", "id", user.ID, "role", user.Role)
	return user, nil
}

// Get retrieves a user by ID
func (s *userServiceImpl) Get(ctx context.Context, id string) (*entity.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// List returns all users, or only those holding role when it is set
func (s *userServiceImpl) List(ctx context.Context, role entity.Role) ([]*entity.User, error) {
	if role == "" {
		return s.userRepo.List(ctx)
	}
	if !role.IsValid() {
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	return s.userRepo.ListByRole(ctx, role)
}

// Deactivate marks a user inactive. Pending approvals already assigned stay assigned.
func (s *userServiceImpl) Deactivate(ctx context.Context, id string) (*entity.User, error) {
	if err := s.userRepo.UpdateStatus(ctx, id, entity.UserStatusInactive); err != nil {
		s.logger.Error("Failed to deactivate user", "error", err, "id", id)
		return nil, err
	}
	s.logger.Info("User deactivated", "id", id)
	return s.userRepo.GetByID(ctx, id)
}
