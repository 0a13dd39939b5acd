package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/workflow"
)

var fixedNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T, opts ...Option) *Router {
	t.Helper()
	seq := 0
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("apr-%d", seq)
		}),
	}, opts...)
	r, err := NewRouter(DefaultRules(), opts...)
	require.NoError(t, err)
	return r
}

func submitted(t *testing.T, r *Router, amount float64) (*entity.Expense, []*entity.Approval) {
	t.Helper()
	exp := &entity.Expense{ID: "exp-1", UserID: "user-3", Amount: amount, Currency: "USD", ConvertedAmount: amount, Status: entity.ExpenseStatusDraft}
	chain, err := r.CreateApprovalChain(exp)
	require.NoError(t, err)
	return exp, chain
}

func roles(chain []*entity.Approval) []entity.Role {
	out := make([]entity.Role, len(chain))
	for i, a := range chain {
		out[i] = a.Role
	}
	return out
}

func TestSelectRule_Bands(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		amount float64
		ruleID string
	}{
		{0, "rule1"},
		{300, "rule1"},
		{499.99, "rule1"},
		{500, "rule2"},
		{1500, "rule2"},
		{1999.99, "rule2"},
		{2000, "rule3"},
		{5000, "rule3"},
		{math.Inf(1), "rule3"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.amount), func(t *testing.T) {
			rule, err := r.SelectRule(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.ruleID, rule.ID)
		})
	}
}

func TestSelectRule_NoMatch(t *testing.T) {
	r := newTestRouter(t)

	for _, amount := range []float64{-0.01, -100, math.NaN()} {
		_, err := r.SelectRule(amount)
		var noMatch *NoMatchingRuleError
		require.ErrorAs(t, err, &noMatch)
		if !math.IsNaN(amount) {
			assert.Equal(t, amount, noMatch.Amount)
		}
	}
}

func TestSelectRule_GapInConfiguration(t *testing.T) {
	low, high := 100.0, 1000.0
	r, err := NewRouter([]entity.ApprovalRule{
		{ID: "low", MinAmount: 0, MaxAmount: &low, ApproverRoles: []entity.Role{entity.RoleManager}, Sequence: 1},
		{ID: "high", MinAmount: 500, MaxAmount: &high, ApproverRoles: []entity.Role{entity.RoleAdmin}, Sequence: 2},
	})
	require.NoError(t, err)

	_, err = r.SelectRule(250)
	var noMatch *NoMatchingRuleError
	require.ErrorAs(t, err, &noMatch)
	assert.Contains(t, err.Error(), "250.00")
}

func TestSelectRule_OverlapPrefersLowestSequence(t *testing.T) {
	top := 1000.0
	r, err := NewRouter([]entity.ApprovalRule{
		{ID: "b-wide", MinAmount: 0, ApproverRoles: []entity.Role{entity.RoleAdmin}, Sequence: 5},
		{ID: "z-narrow", MinAmount: 0, MaxAmount: &top, ApproverRoles: []entity.Role{entity.RoleManager}, Sequence: 1},
		{ID: "a-narrow", MinAmount: 0, MaxAmount: &top, ApproverRoles: []entity.Role{entity.RoleManager, entity.RoleAdmin}, Sequence: 1},
	})
	require.NoError(t, err)

	rule, err := r.SelectRule(10)
	require.NoError(t, err)
	assert.Equal(t, "a-narrow", rule.ID)

	rule, err = r.SelectRule(5000)
	require.NoError(t, err)
	assert.Equal(t, "b-wide", rule.ID)
}

func TestSelectRule_ReturnsCopy(t *testing.T) {
	r := newTestRouter(t)

	rule, err := r.SelectRule(1500)
	require.NoError(t, err)
	rule.ApproverRoles[0] = entity.RoleEmployee
	*rule.MaxAmount = 1

	again, err := r.SelectRule(1500)
	require.NoError(t, err)
	assert.Equal(t, []entity.Role{entity.RoleManager, entity.RoleAdmin}, again.ApproverRoles)
	assert.Equal(t, 2000.0, *again.MaxAmount)
}

func TestValidateRules(t *testing.T) {
	five, zero := 5.0, 0.0
	manager := []entity.Role{entity.RoleManager}

	tests := []struct {
		name  string
		rules []entity.ApprovalRule
	}{
		{"empty set", nil},
		{"missing id", []entity.ApprovalRule{{ApproverRoles: manager}}},
		{"duplicate id", []entity.ApprovalRule{{ID: "a", ApproverRoles: manager}, {ID: "a", ApproverRoles: manager}}},
		{"negative min", []entity.ApprovalRule{{ID: "a", MinAmount: -1, ApproverRoles: manager}}},
		{"max not above min", []entity.ApprovalRule{{ID: "a", MinAmount: 5, MaxAmount: &five, ApproverRoles: manager}}},
		{"zero width band", []entity.ApprovalRule{{ID: "a", MaxAmount: &zero, ApproverRoles: manager}}},
		{"no roles", []entity.ApprovalRule{{ID: "a"}}},
		{"unknown role", []entity.ApprovalRule{{ID: "a", ApproverRoles: []entity.Role{"cfo"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(tt.rules)
			assert.ErrorIs(t, err, ErrInvalidRule)

			_, err = NewRouter(tt.rules)
			assert.ErrorIs(t, err, ErrInvalidRule)
		})
	}

	assert.NoError(t, ValidateRules(DefaultRules()))
}

func TestCreateApprovalChain_LengthMatchesRule(t *testing.T) {
	r := newTestRouter(t)

	for _, amount := range []float64{0, 300, 500, 1500, 2000, 5000} {
		rule, err := r.SelectRule(amount)
		require.NoError(t, err)

		_, chain := submitted(t, r, amount)
		require.Len(t, chain, len(rule.ApproverRoles))
		for i, a := range chain {
			assert.Equal(t, i+1, a.Level)
			assert.Equal(t, rule.ApproverRoles[i], a.Role)
			assert.Equal(t, entity.ApprovalStatusPending, a.Status)
			assert.Equal(t, "exp-1", a.ExpenseID)
			assert.Nil(t, a.DecidedAt)
		}
	}
}

func TestCreateApprovalChain_SetsPending(t *testing.T) {
	r := newTestRouter(t)

	exp, chain := submitted(t, r, 1500)
	assert.Equal(t, entity.ExpenseStatusPending, exp.Status)
	assert.Equal(t, fixedNow, exp.UpdatedAt)
	assert.Equal(t, []string{"apr-1", "apr-2"}, []string{chain[0].ID, chain[1].ID})
}

func TestCreateApprovalChain_EmptyStatusIsDraft(t *testing.T) {
	r := newTestRouter(t)

	exp := &entity.Expense{ID: "exp-2", ConvertedAmount: 42}
	chain, err := r.CreateApprovalChain(exp)
	require.NoError(t, err)
	assert.Len(t, chain, 1)
	assert.Equal(t, entity.ExpenseStatusPending, exp.Status)
}

func TestCreateApprovalChain_RoutesOnConvertedAmount(t *testing.T) {
	r := newTestRouter(t)

	exp := &entity.Expense{ID: "exp-3", Amount: 100, Currency: "XYZ", ConvertedAmount: 2500}
	chain, err := r.CreateApprovalChain(exp)
	require.NoError(t, err)
	assert.Equal(t, []entity.Role{entity.RoleManager, entity.RoleAdmin}, roles(chain))
}

func TestCreateApprovalChain_NonDraftFails(t *testing.T) {
	r := newTestRouter(t)

	for _, status := range []entity.ExpenseStatus{entity.ExpenseStatusPending, entity.ExpenseStatusApproved, entity.ExpenseStatusRejected} {
		t.Run(string(status), func(t *testing.T) {
			exp := &entity.Expense{ID: "exp-4", ConvertedAmount: 100, Status: status}
			chain, err := r.CreateApprovalChain(exp)

			var invalid *InvalidTransitionError
			require.ErrorAs(t, err, &invalid)
			assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
			assert.Nil(t, chain)
			assert.Equal(t, status, exp.Status)
		})
	}
}

func TestCreateApprovalChain_NoMatchLeavesExpenseUntouched(t *testing.T) {
	r := newTestRouter(t)

	exp := &entity.Expense{ID: "exp-5", ConvertedAmount: -5, Status: entity.ExpenseStatusDraft}
	chain, err := r.CreateApprovalChain(exp)

	var noMatch *NoMatchingRuleError
	require.ErrorAs(t, err, &noMatch)
	assert.Nil(t, chain)
	assert.Equal(t, entity.ExpenseStatusDraft, exp.Status)
	assert.True(t, exp.UpdatedAt.IsZero())
}

func TestCreateApprovalChainWithRule_Fallback(t *testing.T) {
	r := newTestRouter(t)

	fallback, ok := r.Rule("rule3")
	require.True(t, ok)

	exp := &entity.Expense{ID: "exp-6", ConvertedAmount: -5}
	chain, err := r.CreateApprovalChainWithRule(exp, fallback)
	require.NoError(t, err)
	assert.Len(t, chain, 2)

	_, ok = r.Rule("missing")
	assert.False(t, ok)
}

func TestScenario_SmallExpenseSingleApproval(t *testing.T) {
	r := newTestRouter(t)
	exp, chain := submitted(t, r, 300)

	require.Equal(t, []entity.Role{entity.RoleManager}, roles(chain))

	out, err := r.RecordDecision(context.Background(), exp, chain, Decision{Level: 1, ApproverID: "user-2", Decision: entity.ApprovalStatusApproved})
	require.NoError(t, err)

	assert.True(t, out.Terminal)
	assert.Equal(t, entity.ExpenseStatusPending, out.PreviousStatus)
	assert.Equal(t, entity.ExpenseStatusApproved, out.Status)
	assert.Equal(t, entity.ExpenseStatusApproved, exp.Status)
	assert.Equal(t, entity.ApprovalStatusApproved, chain[0].Status)
	assert.Equal(t, "user-2", chain[0].ApproverID)
	require.NotNil(t, chain[0].DecidedAt)
	assert.Equal(t, fixedNow, *chain[0].DecidedAt)
	assert.Equal(t, 0, ActiveLevel(chain))
}

func TestScenario_MediumExpenseRejectedAtFirstLevel(t *testing.T) {
	r := newTestRouter(t)
	exp, chain := submitted(t, r, 1500)

	require.Equal(t, []entity.Role{entity.RoleManager, entity.RoleAdmin}, roles(chain))

	out, err := r.RecordDecision(context.Background(), exp, chain, Decision{Level: 1, ApproverID: "user-2", Decision: entity.ApprovalStatusRejected, Comment: "  no receipt  "})
	require.NoError(t, err)

	assert.True(t, out.Terminal)
	assert.Equal(t, entity.ExpenseStatusRejected, exp.Status)
	assert.Equal(t, "no receipt", chain[0].Comment)
	assert.Equal(t, entity.ApprovalStatusPending, chain[1].Status)
	assert.Equal(t, 0, ActiveLevel(chain))

	_, err = r.RecordDecision(context.Background(), exp, chain, Decision{Level: 2, ApproverID: "user-1", Decision: entity.ApprovalStatusApproved})
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, entity.ApprovalStatusPending, chain[1].Status)
}

func TestScenario_LargeExpenseOutOfSequence(t *testing.T) {
	r := newTestRouter(t)
	exp, chain := submitted(t, r, 5000)

	require.Equal(t, []entity.Role{entity.RoleManager, entity.RoleAdmin}, roles(chain))

	_, err := r.RecordDecision(context.Background(), exp, chain, Decision{Level: 2, ApproverID: "user-1", Decision: entity.ApprovalStatusApproved})
	var outOfSeq *OutOfSequenceError
	require.ErrorAs(t, err, &outOfSeq)
	assert.Equal(t, 2, outOfSeq.Level)
	assert.Equal(t, 1, outOfSeq.BlockedLevel)
	assert.Equal(t, entity.ApprovalStatusPending, chain[1].Status)
	assert.Equal(t, entity.ExpenseStatusPending, exp.Status)
}

func TestScenario_TwoLevelApproval(t *testing.T) {
	r := newTestRouter(t)
	exp, chain := submitted(t, r, 5000)
	ctx := context.Background()

	out, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, ApproverID: "user-2", Decision: entity.ApprovalStatusApproved})
	require.NoError(t, err)
	assert.False(t, out.Terminal)
	assert.Equal(t, entity.ExpenseStatusPending, exp.Status)
	assert.Equal(t, 2, ActiveLevel(chain))

	out, err = r.RecordDecision(ctx, exp, chain, Decision{Level: 2, ApproverID: "user-1", Decision: entity.ApprovalStatusApproved})
	require.NoError(t, err)
	assert.True(t, out.Terminal)
	assert.Equal(t, entity.ExpenseStatusApproved, exp.Status)
}

func TestScenario_RejectAtLastLevel(t *testing.T) {
	r := newTestRouter(t)
	exp, chain := submitted(t, r, 1500)
	ctx := context.Background()

	_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, Decision: entity.ApprovalStatusApproved})
	require.NoError(t, err)

	out, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 2, Decision: entity.ApprovalStatusRejected, Comment: "over budget"})
	require.NoError(t, err)
	assert.True(t, out.Terminal)
	assert.Equal(t, entity.ExpenseStatusRejected, exp.Status)
}

func TestRecordDecision_MissingComment(t *testing.T) {
	r := newTestRouter(t)

	for _, comment := range []string{"", "   ", "\t\n"} {
		exp, chain := submitted(t, r, 300)
		before := *chain[0]

		_, err := r.RecordDecision(context.Background(), exp, chain, Decision{Level: 1, ApproverID: "user-2", Decision: entity.ApprovalStatusRejected, Comment: comment})
		var missing *MissingCommentError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, 1, missing.Level)
		assert.Equal(t, before, *chain[0])
		assert.Equal(t, entity.ExpenseStatusPending, exp.Status)
	}
}

func TestRecordDecision_AssignedApprover(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	for _, caller := range []string{"user-3", "no-such-user", ""} {
		exp, chain := submitted(t, r, 1500)
		chain[0].ApproverID = "user-2"
		chain[1].ApproverID = "user-1"
		before := *chain[0]

		_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, ApproverID: caller, Decision: entity.ApprovalStatusApproved})
		var notAssigned *NotAssignedApproverError
		require.ErrorAs(t, err, &notAssigned, "caller %q", caller)
		assert.Equal(t, 1, notAssigned.Level)
		assert.Equal(t, caller, notAssigned.ApproverID)
		assert.Equal(t, "user-2", notAssigned.AssignedID)
		assert.Equal(t, before, *chain[0])
		assert.Equal(t, entity.ExpenseStatusPending, exp.Status)
	}

	exp, chain := submitted(t, r, 1500)
	chain[0].ApproverID = "user-2"
	chain[1].ApproverID = "user-1"

	_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, ApproverID: "user-2", Decision: entity.ApprovalStatusApproved})
	require.NoError(t, err)
	assert.Equal(t, "user-2", chain[0].ApproverID)

	// the level 1 approver cannot also decide level 2
	_, err = r.RecordDecision(ctx, exp, chain, Decision{Level: 2, ApproverID: "user-2", Decision: entity.ApprovalStatusApproved})
	var notAssigned *NotAssignedApproverError
	require.ErrorAs(t, err, &notAssigned)
	assert.Equal(t, "user-1", chain[1].ApproverID)
	assert.Equal(t, entity.ApprovalStatusPending, chain[1].Status)
}

func TestRecordDecision_Errors(t *testing.T) {
	r := newTestRouter(t)
	ctx := context.Background()

	t.Run("unknown level", func(t *testing.T) {
		exp, chain := submitted(t, r, 300)
		_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 3, Decision: entity.ApprovalStatusApproved})
		var notFound *LevelNotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, 3, notFound.Level)
	})

	t.Run("invalid decision", func(t *testing.T) {
		exp, chain := submitted(t, r, 300)
		_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, Decision: entity.ApprovalStatusPending})
		assert.ErrorIs(t, err, ErrInvalidDecision)
		assert.Equal(t, entity.ApprovalStatusPending, chain[0].Status)
	})

	t.Run("already decided level", func(t *testing.T) {
		exp, chain := submitted(t, r, 1500)
		_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, Decision: entity.ApprovalStatusApproved})
		require.NoError(t, err)

		_, err = r.RecordDecision(ctx, exp, chain, Decision{Level: 1, Decision: entity.ApprovalStatusRejected, Comment: "changed my mind"})
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, entity.ApprovalStatusApproved, chain[0].Status)
	})

	t.Run("terminal expense", func(t *testing.T) {
		exp, chain := submitted(t, r, 300)
		_, err := r.RecordDecision(ctx, exp, chain, Decision{Level: 1, Decision: entity.ApprovalStatusApproved})
		require.NoError(t, err)

		_, err = r.RecordDecision(ctx, exp, chain, Decision{Level: 1, Decision: entity.ApprovalStatusApproved})
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, entity.ExpenseStatusApproved, invalid.From)
		assert.True(t, errors.Is(err, workflow.ErrInvalidTransition))
	})

	t.Run("draft expense", func(t *testing.T) {
		exp := &entity.Expense{ID: "exp-9", Status: entity.ExpenseStatusDraft}
		_, err := r.RecordDecision(ctx, exp, nil, Decision{Level: 1, Decision: entity.ApprovalStatusApproved})
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
	})
}

func TestIsFlagged(t *testing.T) {
	r := newTestRouter(t)
	assert.Equal(t, DefaultFlagThreshold, r.FlagThreshold())

	assert.False(t, r.IsFlagged(&entity.Expense{ConvertedAmount: 800}))
	assert.True(t, r.IsFlagged(&entity.Expense{ConvertedAmount: 800.01}))

	strict := newTestRouter(t, WithFlagThreshold(100))
	assert.True(t, strict.IsFlagged(&entity.Expense{ConvertedAmount: 150}))
}

func TestActiveLevel(t *testing.T) {
	assert.Equal(t, 0, ActiveLevel(nil))
	assert.Equal(t, 2, ActiveLevel([]*entity.Approval{
		{Level: 3, Status: entity.ApprovalStatusPending},
		{Level: 1, Status: entity.ApprovalStatusApproved},
		{Level: 2, Status: entity.ApprovalStatusPending},
	}))
}

func TestRules_EvaluationOrder(t *testing.T) {
	r := newTestRouter(t)

	rules := r.Rules()
	require.Len(t, rules, 3)
	assert.Equal(t, "rule1", rules[0].ID)
	assert.Equal(t, "rule3", rules[2].ID)

	rules[0].ApproverRoles[0] = entity.RoleAdmin
	assert.Equal(t, entity.RoleManager, r.Rules()[0].ApproverRoles[0])
}
