package workflow

import "github.com/garyjia/expense-router/internal/domain/entity"

// State is an expense lifecycle state
type State string

const (
	StateDraft    State = State(entity.ExpenseStatusDraft)
	StatePending  State = State(entity.ExpenseStatusPending)
	StateApproved State = State(entity.ExpenseStatusApproved)
	StateRejected State = State(entity.ExpenseStatusRejected)
)

// FromStatus converts an expense status into a lifecycle state. An empty status is
// treated as a draft (freshly submitted expense).
func FromStatus(status entity.ExpenseStatus) State {
	if status == "" {
		return StateDraft
	}
	return State(status)
}

// Status converts the state back into the expense status stored on the record
func (s State) Status() entity.ExpenseStatus {
	return entity.ExpenseStatus(s)
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return entity.ExpenseStatus(s).IsValid()
}
