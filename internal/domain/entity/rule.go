package entity

import "math"

// ApprovalRule maps the amount band [MinAmount, MaxAmount) to the ordered roles that
// must approve. A nil MaxAmount leaves the band unbounded.
type ApprovalRule struct {
	ID            string   `json:"id" yaml:"id" mapstructure:"id"`
	Name          string   `json:"name" yaml:"name" mapstructure:"name"`
	MinAmount     float64  `json:"min_amount" yaml:"min_amount" mapstructure:"min_amount"`
	MaxAmount     *float64 `json:"max_amount,omitempty" yaml:"max_amount,omitempty" mapstructure:"max_amount"`
	ApproverRoles []Role   `json:"approver_roles" yaml:"approver_roles" mapstructure:"approver_roles"`
	Sequence      int      `json:"sequence" yaml:"sequence" mapstructure:"sequence"`
}

// Matches reports whether amount falls inside the rule's band
func (r *ApprovalRule) Matches(amount float64) bool {
	if math.IsNaN(amount) || amount < r.MinAmount {
		return false
	}
	return r.MaxAmount == nil || amount < *r.MaxAmount
}

// Levels returns the number of approval levels the rule requires
func (r *ApprovalRule) Levels() int {
	return len(r.ApproverRoles)
}
