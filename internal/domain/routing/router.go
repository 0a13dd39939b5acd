package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/workflow"
)

// DefaultFlagThreshold is the converted amount above which an expense is flagged for attention
const DefaultFlagThreshold = 800.0

// Decision is one approver's verdict on one level of a chain
type Decision struct {
	Level      int                   `json:"level"`
	ApproverID string                `json:"approver_id"`
	Decision   entity.ApprovalStatus `json:"decision"`
	Comment    string                `json:"comment,omitempty"`
}

// Outcome describes what RecordDecision changed
type Outcome struct {
	Approval       *entity.Approval
	PreviousStatus entity.ExpenseStatus
	Status         entity.ExpenseStatus
	Terminal       bool
}

// Option configures a Router
type Option func(*Router)

// WithFlagThreshold overrides DefaultFlagThreshold
func WithFlagThreshold(threshold float64) Option {
	return func(r *Router) {
		r.flagThreshold = threshold
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

// WithIDGenerator overrides the approval ID generator
func WithIDGenerator(newID func() string) Option {
	return func(r *Router) {
		r.newID = newID
	}
}

// Router selects approval chains from a static rule set and applies decisions to them.
// It holds no mutable state after construction and performs no I/O.
type Router struct {
	rules         []entity.ApprovalRule
	flagThreshold float64
	lifecycle     workflow.StateMachineBuilder
	now           func() time.Time
	newID         func() string
}

// NewRouter validates rules and returns a router over them
func NewRouter(rules []entity.ApprovalRule, opts ...Option) (*Router, error) {
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}

	sorted := make([]entity.ApprovalRule, len(rules))
	for i, rule := range rules {
		sorted[i] = cloneRule(rule)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Sequence != sorted[j].Sequence {
			return sorted[i].Sequence < sorted[j].Sequence
		}
		return sorted[i].ID < sorted[j].ID
	})

	r := &Router{
		rules:         sorted,
		flagThreshold: DefaultFlagThreshold,
		lifecycle:     workflow.NewExpenseLifecycle(),
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ValidateRules checks every rule and the uniqueness of rule IDs. Overlapping bands are allowed.
func ValidateRules(rules []entity.ApprovalRule) error {
	if len(rules) == 0 {
		return fmt.Errorf("%w: rule set is empty", ErrInvalidRule)
	}

	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		if strings.TrimSpace(rule.ID) == "" {
			return fmt.Errorf("%w: rule #%d has no id", ErrInvalidRule, i+1)
		}
		if seen[rule.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRule, rule.ID)
		}
		seen[rule.ID] = true

		if rule.MinAmount < 0 {
			return fmt.Errorf("%w: rule %q has negative min_amount", ErrInvalidRule, rule.ID)
		}
		if rule.MaxAmount != nil && *rule.MaxAmount <= rule.MinAmount {
			return fmt.Errorf("%w: rule %q max_amount must exceed min_amount", ErrInvalidRule, rule.ID)
		}
		if len(rule.ApproverRoles) == 0 {
			return fmt.Errorf("%w: rule %q has no approver roles", ErrInvalidRule, rule.ID)
		}
		for _, role := range rule.ApproverRoles {
			if !role.IsValid() {
				return fmt.Errorf("%w: rule %q has unknown role %q", ErrInvalidRule, rule.ID, role)
			}
		}
	}
	return nil
}

// Rules returns a copy of the rule set in evaluation order
func (r *Router) Rules() []entity.ApprovalRule {
	out := make([]entity.ApprovalRule, len(r.rules))
	for i, rule := range r.rules {
		out[i] = cloneRule(rule)
	}
	return out
}

// Rule looks a rule up by ID
func (r *Router) Rule(id string) (*entity.ApprovalRule, bool) {
	for _, rule := range r.rules {
		if rule.ID == id {
			c := cloneRule(rule)
			return &c, true
		}
	}
	return nil, false
}

// FlagThreshold returns the amount above which expenses are flagged
func (r *Router) FlagThreshold() float64 {
	return r.flagThreshold
}

// SelectRule returns the rule whose band contains amount. When bands overlap the lowest
// sequence wins, then the lowest rule ID.
func (r *Router) SelectRule(amount float64) (*entity.ApprovalRule, error) {
	for _, rule := range r.rules {
		if rule.Matches(amount) {
			c := cloneRule(rule)
			return &c, nil
		}
	}
	return nil, &NoMatchingRuleError{Amount: amount}
}

// CreateApprovalChain routes the expense by its converted amount, returns one pending
// approval per level and moves the expense to pending. Nothing is mutated on error.
func (r *Router) CreateApprovalChain(expense *entity.Expense) ([]*entity.Approval, error) {
	rule, err := r.SelectRule(expense.ConvertedAmount)
	if err != nil {
		return nil, err
	}
	return r.CreateApprovalChainWithRule(expense, rule)
}

// CreateApprovalChainWithRule builds the chain from an explicitly chosen rule, used by
// callers that fall back to a default rule after NoMatchingRuleError.
func (r *Router) CreateApprovalChainWithRule(expense *entity.Expense, rule *entity.ApprovalRule) ([]*entity.Approval, error) {
	if rule == nil || len(rule.ApproverRoles) == 0 {
		return nil, &NoMatchingRuleError{Amount: expense.ConvertedAmount}
	}

	machine := r.lifecycle.Build(workflow.FromStatus(expense.Status))
	if err := machine.Fire(context.Background(), workflow.TriggerSubmit); err != nil {
		return nil, &InvalidTransitionError{
			ExpenseID: expense.ID,
			From:      expense.Status,
			Action:    "submit",
			Reason:    "only drafts can be submitted",
		}
	}

	now := r.now()
	chain := make([]*entity.Approval, 0, len(rule.ApproverRoles))
	for i, role := range rule.ApproverRoles {
		chain = append(chain, &entity.Approval{
			ID:        r.newID(),
			ExpenseID: expense.ID,
			Role:      role,
			Status:    entity.ApprovalStatusPending,
			Level:     i + 1,
			CreatedAt: now,
		})
	}

	expense.Status = machine.State().Status()
	expense.UpdatedAt = now
	return chain, nil
}

// RecordDecision applies a decision to the chain. A level with an assigned approver
// accepts decisions from that user only; an unassigned level records the caller. On
// success the target approval is updated in place and the expense status changes only
// on terminal transitions. On error neither record is touched.
func (r *Router) RecordDecision(ctx context.Context, expense *entity.Expense, chain []*entity.Approval, d Decision) (*Outcome, error) {
	action := strings.ToLower(string(d.Decision))
	if d.Decision != entity.ApprovalStatusApproved && d.Decision != entity.ApprovalStatusRejected {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidDecision, d.Decision)
	}

	trigger := workflow.TriggerApprove
	if d.Decision == entity.ApprovalStatusRejected {
		trigger = workflow.TriggerReject
	}

	machine := r.lifecycle.Build(workflow.FromStatus(expense.Status))
	if !machine.CanFire(trigger) {
		return nil, &InvalidTransitionError{
			ExpenseID: expense.ID,
			From:      expense.Status,
			Action:    action,
			Reason:    "expense is not awaiting approval",
		}
	}

	target := findLevel(chain, d.Level)
	if target == nil {
		return nil, &LevelNotFoundError{Level: d.Level}
	}
	if target.ApproverID != "" && d.ApproverID != target.ApproverID {
		return nil, &NotAssignedApproverError{Level: d.Level, ApproverID: d.ApproverID, AssignedID: target.ApproverID}
	}

	for _, a := range chain {
		if a.Level < d.Level && a.Status != entity.ApprovalStatusApproved {
			return nil, &OutOfSequenceError{Level: d.Level, BlockedLevel: a.Level}
		}
	}

	if target.Status != entity.ApprovalStatusPending {
		return nil, &InvalidTransitionError{
			ExpenseID: expense.ID,
			From:      expense.Status,
			Action:    action,
			Reason:    fmt.Sprintf("level %d is already %s", d.Level, target.Status),
		}
	}

	comment := strings.TrimSpace(d.Comment)
	if d.Decision == entity.ApprovalStatusRejected && comment == "" {
		return nil, &MissingCommentError{Level: d.Level}
	}

	final := d.Level == maxLevel(chain)
	if err := machine.Fire(workflow.WithFinalLevel(ctx, final), trigger); err != nil {
		return nil, &InvalidTransitionError{
			ExpenseID: expense.ID,
			From:      expense.Status,
			Action:    action,
			Reason:    err.Error(),
		}
	}

	now := r.now()
	previous := expense.Status

	target.Status = d.Decision
	target.Comment = comment
	if target.ApproverID == "" {
		target.ApproverID = d.ApproverID
	}
	target.DecidedAt = &now

	next := machine.State()
	if next.IsTerminal() {
		expense.Status = next.Status()
		expense.UpdatedAt = now
	}

	return &Outcome{
		Approval:       target,
		PreviousStatus: previous,
		Status:         expense.Status,
		Terminal:       next.IsTerminal(),
	}, nil
}

// IsFlagged reports whether the expense exceeds the flag threshold. Advisory only.
func (r *Router) IsFlagged(expense *entity.Expense) bool {
	return expense.ConvertedAmount > r.flagThreshold
}

// ActiveLevel returns the lowest pending level of the chain, or 0 when none is pending
func ActiveLevel(chain []*entity.Approval) int {
	active := 0
	for _, a := range chain {
		if a.Status == entity.ApprovalStatusRejected {
			return 0
		}
		if a.Status == entity.ApprovalStatusPending && (active == 0 || a.Level < active) {
			active = a.Level
		}
	}
	return active
}

func findLevel(chain []*entity.Approval, level int) *entity.Approval {
	for _, a := range chain {
		if a.Level == level {
			return a
		}
	}
	return nil
}

func maxLevel(chain []*entity.Approval) int {
	highest := 0
	for _, a := range chain {
		if a.Level > highest {
			highest = a.Level
		}
	}
	return highest
}

func cloneRule(rule entity.ApprovalRule) entity.ApprovalRule {
	c := rule
	c.ApproverRoles = append([]entity.Role(nil), rule.ApproverRoles...)
	if rule.MaxAmount != nil {
		upper := *rule.MaxAmount
		c.MaxAmount = &upper
	}
	return c
}
