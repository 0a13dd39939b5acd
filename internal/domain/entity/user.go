package entity

import "time"

// User is an employee, manager or administrator
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	ManagerID  string     `json:"manager_id,omitempty"`
	Department string     `json:"department"`
	Status     UserStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsActive returns true if the user may submit or approve expenses
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}
