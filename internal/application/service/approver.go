package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

// approverResolver assigns a concrete user to each role of a chain
type approverResolver struct {
	users port.UserRepository
}

// resolve picks the approver for role on behalf of submitter. Managers resolve to the
// submitter's own manager when that user is active. Every role otherwise resolves to the
// first active user holding it, never the submitter.
func (r *approverResolver) resolve(ctx context.Context, submitter *entity.User, role entity.Role) (string, error) {
	if role == entity.RoleManager && submitter.ManagerID != "" {
		manager, err := r.users.GetByID(ctx, submitter.ManagerID)
		if err == nil && manager.IsActive() && manager.ID != submitter.ID {
			return manager.ID, nil
		}
	}

	candidates, err := r.users.ListByRole(ctx, role)
	if err != nil {
		return "", fmt.Errorf("list %s users: %w", role, err)
	}
	for _, u := range candidates {
		if u.IsActive() && u.ID != submitter.ID {
			return u.ID, nil
		}
	}
	return "", fmt.Errorf("%w for role %s", ErrNoApprover, role)
}

func (r *approverResolver) assign(ctx context.Context, submitter *entity.User, chain []*entity.Approval) error {
	assigned := make(map[entity.Role]string)
	for _, a := range chain {
		id, ok := assigned[a.Role]
		if !ok {
			var err error
			if id, err = r.resolve(ctx, submitter, a.Role); err != nil {
				return err
			}
			assigned[a.Role] = id
		}
		a.ApproverID = id
	}
	return nil
}
