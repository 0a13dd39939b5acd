package routing

import "github.com/garyjia/expense-router/internal/domain/entity"

// DefaultRules returns the standard three-band rule set:
// [0,500) manager, [500,2000) manager then admin, [2000,∞) manager then admin.
func DefaultRules() []entity.ApprovalRule {
	small, medium := 500.0, 2000.0
	return []entity.ApprovalRule{
		{
			ID:            "rule1",
			Name:          "Manager approval for expenses under $500",
			MinAmount:     0,
			MaxAmount:     &small,
			ApproverRoles: []entity.Role{entity.RoleManager},
			Sequence:      1,
		},
		{
			ID:            "rule2",
			Name:          "Manager + Admin approval for expenses $500-$2000",
			MinAmount:     500,
			MaxAmount:     &medium,
			ApproverRoles: []entity.Role{entity.RoleManager, entity.RoleAdmin},
			Sequence:      2,
		},
		{
			ID:            "rule3",
			Name:          "Full approval chain for expenses over $2000",
			MinAmount:     2000,
			ApproverRoles: []entity.Role{entity.RoleManager, entity.RoleAdmin},
			Sequence:      3,
		},
	}
}
