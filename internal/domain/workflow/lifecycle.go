package workflow

import "context"

type finalLevelKey struct{}

// WithFinalLevel marks whether the approval being fired closes the chain.
// The APPROVE trigger reads it to choose between staying pending and approving.
func WithFinalLevel(ctx context.Context, final bool) context.Context {
	return context.WithValue(ctx, finalLevelKey{}, final)
}

// IsFinalLevel reports the flag set by WithFinalLevel (false when absent)
func IsFinalLevel(ctx context.Context) bool {
	final, _ := ctx.Value(finalLevelKey{}).(bool)
	return final
}

// NewExpenseLifecycle returns a builder configured with the expense lifecycle:
//
//	draft   --SUBMIT-->  pending
//	pending --APPROVE--> pending   (intermediate level)
//	pending --APPROVE--> approved  (final level)
//	pending --REJECT-->  rejected
//
// approved and rejected are terminal and accept no trigger.
func NewExpenseLifecycle() StateMachineBuilder {
	builder := NewBuilder()

	builder.Configure(StateDraft).
		Permit(TriggerSubmit, StatePending)

	builder.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, IsFinalLevel).
		PermitIf(TriggerApprove, StatePending, func(ctx context.Context) bool {
			return !IsFinalLevel(ctx)
		}).
		Permit(TriggerReject, StateRejected)

	return builder
}
