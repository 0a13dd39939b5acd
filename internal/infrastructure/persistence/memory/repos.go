package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

type expenseRepo struct{ s *Store }

func (r *expenseRepo) Create(ctx context.Context, expense *entity.Expense) error {
	defer r.s.lock(ctx)()

	if r.s.expenses.has(expense.ID) {
		return fmt.Errorf("expense %s already exists", expense.ID)
	}
	r.s.expenses.put(expense.ID, expense)
	return nil
}

func (r *expenseRepo) GetByID(_ context.Context, id string) (*entity.Expense, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	expense, ok := r.s.expenses.get(id)
	if !ok {
		return nil, port.ErrNotFound
	}
	return expense, nil
}

func (r *expenseRepo) Update(ctx context.Context, expense *entity.Expense) error {
	defer r.s.lock(ctx)()

	if !r.s.expenses.has(expense.ID) {
		return port.ErrNotFound
	}
	r.s.expenses.put(expense.ID, expense)
	return nil
}

func (r *expenseRepo) List(_ context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error) {
	r.s.mu.RLock()
	var out []*entity.Expense
	r.s.expenses.each(func(e *entity.Expense) {
		if filter.UserID != "" && e.UserID != filter.UserID {
			return
		}
		if filter.Status != "" && e.Status != filter.Status {
			return
		}
		if filter.Category != "" && e.Category != filter.Category {
			return
		}
		out = append(out, e)
	})
	r.s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

type approvalRepo struct{ s *Store }

func (r *approvalRepo) CreateBatch(ctx context.Context, approvals []*entity.Approval) error {
	defer r.s.lock(ctx)()

	levels := make(map[string]bool)
	r.s.approvals.each(func(a *entity.Approval) {
		levels[fmt.Sprintf("%s/%d", a.ExpenseID, a.Level)] = true
	})

	for _, a := range approvals {
		if !r.s.expenses.has(a.ExpenseID) {
			return fmt.Errorf("approval %s references unknown expense %s", a.ID, a.ExpenseID)
		}
		key := fmt.Sprintf("%s/%d", a.ExpenseID, a.Level)
		if r.s.approvals.has(a.ID) || levels[key] {
			return fmt.Errorf("approval level %d of expense %s already exists", a.Level, a.ExpenseID)
		}
		levels[key] = true
	}

	for _, a := range approvals {
		r.s.approvals.put(a.ID, a)
	}
	return nil
}

func (r *approvalRepo) GetByExpenseID(_ context.Context, expenseID string) ([]*entity.Approval, error) {
	out := r.filter(func(a *entity.Approval) bool { return a.ExpenseID == expenseID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out, nil
}

func (r *approvalRepo) ListByApprover(_ context.Context, approverID string) ([]*entity.Approval, error) {
	out := r.filter(func(a *entity.Approval) bool { return a.ApproverID == approverID })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Level < out[j].Level
	})
	return out, nil
}

func (r *approvalRepo) Update(ctx context.Context, approval *entity.Approval) error {
	defer r.s.lock(ctx)()

	current, ok := r.s.approvals.get(approval.ID)
	if !ok {
		return port.ErrNotFound
	}
	current.ApproverID = approval.ApproverID
	current.Status = approval.Status
	current.Comment = approval.Comment
	current.DecidedAt = approval.DecidedAt
	r.s.approvals.put(current.ID, current)
	return nil
}

func (r *approvalRepo) filter(keep func(*entity.Approval) bool) []*entity.Approval {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.Approval
	r.s.approvals.each(func(a *entity.Approval) {
		if keep(a) {
			out = append(out, a)
		}
	})
	return out
}

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *entity.User) error {
	defer r.s.lock(ctx)()

	if r.s.users.has(user.ID) {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	var dup bool
	r.s.users.each(func(u *entity.User) {
		if u.Email == user.Email {
			dup = true
		}
	})
	if dup {
		return fmt.Errorf("email %s already registered", user.Email)
	}
	r.s.users.put(user.ID, user)
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users.get(id)
	if !ok {
		return nil, port.ErrNotFound
	}
	return user, nil
}

func (r *userRepo) List(_ context.Context) ([]*entity.User, error) {
	out := r.filter(func(*entity.User) bool { return true })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListByRole keeps insertion order, which stands in for creation order
func (r *userRepo) ListByRole(_ context.Context, role entity.Role) ([]*entity.User, error) {
	return r.filter(func(u *entity.User) bool { return u.Role == role }), nil
}

func (r *userRepo) UpdateStatus(ctx context.Context, id string, status entity.UserStatus) error {
	defer r.s.lock(ctx)()

	user, ok := r.s.users.get(id)
	if !ok {
		return port.ErrNotFound
	}
	user.Status = status
	r.s.users.put(id, user)
	return nil
}

func (r *userRepo) filter(keep func(*entity.User) bool) []*entity.User {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.User
	r.s.users.each(func(u *entity.User) {
		if keep(u) {
			out = append(out, u)
		}
	})
	return out
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Create(ctx context.Context, history *entity.ExpenseHistory) error {
	defer r.s.lock(ctx)()

	r.s.historySeq++
	history.ID = r.s.historySeq
	if history.Timestamp.IsZero() {
		history.Timestamp = time.Now()
	}
	c := *history
	r.s.history = append(r.s.history, &c)
	return nil
}

func (r *historyRepo) GetByExpenseID(_ context.Context, expenseID string) ([]*entity.ExpenseHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*entity.ExpenseHistory
	for _, h := range r.s.history {
		if h.ExpenseID == expenseID {
			c := *h
			out = append(out, &c)
		}
	}
	return out, nil
}
