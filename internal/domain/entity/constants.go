package entity

// ExpenseStatus is the lifecycle status of an expense
type ExpenseStatus string

const (
	ExpenseStatusDraft    ExpenseStatus = "draft"
	ExpenseStatusPending  ExpenseStatus = "pending"
	ExpenseStatusApproved ExpenseStatus = "approved"
	ExpenseStatusRejected ExpenseStatus = "rejected"
)

// IsValid returns true if the status is a known expense status
func (s ExpenseStatus) IsValid() bool {
	switch s {
	case ExpenseStatusDraft, ExpenseStatusPending, ExpenseStatusApproved, ExpenseStatusRejected:
		return true
	}
	return false
}

// IsTerminal returns true once no further decisions can be recorded
func (s ExpenseStatus) IsTerminal() bool {
	return s == ExpenseStatusApproved || s == ExpenseStatusRejected
}

// ApprovalStatus is the status of a single approval level
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// IsValid returns true if the status is a known approval status
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRejected:
		return true
	}
	return false
}

// Role is a user role; approver roles in rules use the same values
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// UserStatus tells whether a user account can act
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// History action types
const (
	ActionSaveDraft = "SAVE_DRAFT"
	ActionSubmit    = "SUBMIT"
	ActionApprove   = "APPROVE"
	ActionReject    = "REJECT"
)

// Expense categories seen in the dashboards; other values are accepted as-is
const (
	CategoryTravel   = "Travel"
	CategoryFood     = "Food"
	CategoryOffice   = "Office"
	CategorySoftware = "Software"
	CategoryMisc     = "Misc"
)
