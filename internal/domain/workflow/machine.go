package workflow

import "context"

// StateMachine walks one expense through draft, pending, approved and rejected.
// Submission fires SUBMIT and every recorded decision fires APPROVE or REJECT.
type StateMachine interface {
	// State returns the expense status the machine is in
	State() State

	// CanFire reports whether the expense's current status accepts trigger, ignoring
	// guards. The router uses it to reject decisions on drafts and closed expenses.
	CanFire(trigger Trigger) bool

	// Fire moves the expense to its next status. A decision on the final level must
	// carry WithFinalLevel(ctx, true) so APPROVE lands on approved instead of pending.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers lists what the current status accepts, in registration order.
	// It is empty once the expense is approved or rejected.
	PermittedTriggers() []Trigger
}
