package routing

import (
	"errors"
	"fmt"

	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/workflow"
)

var (
	// ErrInvalidDecision is returned when a decision is neither approved nor rejected
	ErrInvalidDecision = errors.New("decision must be approved or rejected")

	// ErrInvalidRule is returned when a rule set fails validation at load
	ErrInvalidRule = errors.New("invalid approval rule")
)

// NoMatchingRuleError means the amount falls outside every configured band
type NoMatchingRuleError struct {
	Amount float64
}

func (e *NoMatchingRuleError) Error() string {
	return fmt.Sprintf("no approval rule matches amount %.2f", e.Amount)
}

// OutOfSequenceError means a level was decided before every lower level was approved
type OutOfSequenceError struct {
	Level        int
	BlockedLevel int
}

func (e *OutOfSequenceError) Error() string {
	return fmt.Sprintf("level %d cannot be decided before level %d is approved", e.Level, e.BlockedLevel)
}

// MissingCommentError means a rejection was recorded without a justification
type MissingCommentError struct {
	Level int
}

func (e *MissingCommentError) Error() string {
	return fmt.Sprintf("rejection at level %d requires a comment", e.Level)
}

// InvalidTransitionError means the expense or the approval level cannot accept the action
type InvalidTransitionError struct {
	ExpenseID string
	From      entity.ExpenseStatus
	Action    string
	Reason    string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("expense %s: cannot %s from status %q", e.ExpenseID, e.Action, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets callers match the lifecycle sentinel with errors.Is
func (e *InvalidTransitionError) Unwrap() error {
	return workflow.ErrInvalidTransition
}

// LevelNotFoundError means the chain has no approval at the requested level
type LevelNotFoundError struct {
	Level int
}

func (e *LevelNotFoundError) Error() string {
	return fmt.Sprintf("approval level %d not found", e.Level)
}

// NotAssignedApproverError means someone other than the assigned approver tried to decide a level
type NotAssignedApproverError struct {
	Level      int
	ApproverID string
	AssignedID string
}

func (e *NotAssignedApproverError) Error() string {
	return fmt.Sprintf("user %q is not the assigned approver for level %d", e.ApproverID, e.Level)
}
