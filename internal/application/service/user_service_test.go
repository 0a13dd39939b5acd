package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

func TestUserService_Create(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateUserRequest
		wantErr bool
	}{
		{
			name: "valid employee",
			req:  CreateUserRequest{Name: "Lia Analyst", Email: "Lia@Monex.com", Role: entity.RoleEmployee, ManagerID: "2", Department: "Finance"},
		},
		{
			name:    "missing name",
			req:     CreateUserRequest{Email: "x@monex.com", Role: entity.RoleEmployee},
			wantErr: true,
		},
		{
			name:    "bad email",
			req:     CreateUserRequest{Name: "X", Email: "not-an-email", Role: entity.RoleEmployee},
			wantErr: true,
		},
		{
			name:    "unknown role",
			req:     CreateUserRequest{Name: "X", Email: "x@monex.com", Role: "owner"},
			wantErr: true,
		},
		{
			name:    "unknown manager",
			req:     CreateUserRequest{Name: "X", Email: "x@monex.com", Role: entity.RoleEmployee, ManagerID: "42"},
			wantErr: true,
		},
		{
			name:    "employee cannot manage",
			req:     CreateUserRequest{Name: "X", Email: "x@monex.com", Role: entity.RoleEmployee, ManagerID: "3"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewUserService(demoRepos(t).Users, &mockLogger{})
			user, err := svc.Create(context.Background(), tt.req)
			if tt.wantErr {
				if !isValidation(err) {
					t.Fatalf("Create() error = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if user.ID == "" || user.Status != entity.UserStatusActive {
				t.Errorf("Create() = %+v", user)
			}
			if user.Email != "lia@monex.com" {
				t.Errorf("Email = %s, want lowercased", user.Email)
			}
		})
	}
}

func TestUserService_CreateDuplicateEmail(t *testing.T) {
	svc := NewUserService(demoRepos(t).Users, &mockLogger{})

	_, err := svc.Create(context.Background(), CreateUserRequest{Name: "Twin", Email: "emma@monex.com", Role: entity.RoleEmployee})
	if err == nil {
		t.Fatal("Create() with a registered email should fail")
	}
}

func TestUserService_ListAndDeactivate(t *testing.T) {
	svc := NewUserService(demoRepos(t).Users, &mockLogger{})
	ctx := context.Background()

	all, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("List() length = %d, want 5", len(all))
	}

	employees, err := svc.List(ctx, entity.RoleEmployee)
	if err != nil {
		t.Fatalf("List(employee) error = %v", err)
	}
	if len(employees) != 3 {
		t.Errorf("employees = %d, want 3", len(employees))
	}

	if _, err := svc.List(ctx, "owner"); !isValidation(err) {
		t.Errorf("List(owner) error = %v, want ValidationError", err)
	}

	user, err := svc.Deactivate(ctx, "4")
	if err != nil {
		t.Fatalf("Deactivate() error = %v", err)
	}
	if user.IsActive() {
		t.Error("user should be inactive")
	}

	if _, err := svc.Deactivate(ctx, "404"); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("Deactivate(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, "404"); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}
