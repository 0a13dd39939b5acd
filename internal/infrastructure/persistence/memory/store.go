package memory

import (
	"context"
	"sync"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

// table keeps cloned records by key in insertion order
type table[T any] struct {
	records map[string]*T
	order   []string
	clone   func(*T) *T
}

func newTable[T any](clone func(*T) *T) *table[T] {
	return &table[T]{
		records: make(map[string]*T),
		clone:   clone,
	}
}

func (t *table[T]) put(key string, v *T) {
	if _, exists := t.records[key]; !exists {
		t.order = append(t.order, key)
	}
	t.records[key] = t.clone(v)
}

func (t *table[T]) get(key string) (*T, bool) {
	v, ok := t.records[key]
	if !ok {
		return nil, false
	}
	return t.clone(v), true
}

func (t *table[T]) has(key string) bool {
	_, ok := t.records[key]
	return ok
}

// each visits records in insertion order; values are clones
func (t *table[T]) each(fn func(*T)) {
	for _, key := range t.order {
		fn(t.clone(t.records[key]))
	}
}

func (t *table[T]) snapshot() *table[T] {
	c := newTable(t.clone)
	c.order = append([]string(nil), t.order...)
	for k, v := range t.records {
		c.records[k] = t.clone(v)
	}
	return c
}

type txKey struct{}

// Store is an in-memory backend for every repository port. Transactions are serialized
// and roll back by restoring a snapshot taken when they begin. Writes outside a
// transaction wait for the running one to finish so a rollback never discards them.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	expenses   *table[entity.Expense]
	approvals  *table[entity.Approval]
	users      *table[entity.User]
	history    []*entity.ExpenseHistory
	historySeq int64
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		expenses:  newTable((*entity.Expense).Clone),
		approvals: newTable((*entity.Approval).Clone),
		users:     newTable(cloneUser),
	}
}

// Expenses returns the expense repository view of the store
func (s *Store) Expenses() port.ExpenseRepository { return &expenseRepo{s: s} }

// Approvals returns the approval repository view of the store
func (s *Store) Approvals() port.ApprovalRepository { return &approvalRepo{s: s} }

// Users returns the user repository view of the store
func (s *Store) Users() port.UserRepository { return &userRepo{s: s} }

// History returns the history repository view of the store
func (s *Store) History() port.HistoryRepository { return &historyRepo{s: s} }

// Repositories returns every port backed by this store
func (s *Store) Repositories() port.Repositories {
	return port.Repositories{
		Tx:        s,
		Expenses:  s.Expenses(),
		Approvals: s.Approvals(),
		Users:     s.Users(),
		History:   s.History(),
	}
}

// WithTransaction implements port.TransactionManager. Nested calls join the outer transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	committed := false
	defer func() {
		if !committed {
			s.restore(snap)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the write lock, joining the caller's transaction or waiting for the running one.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	inTx := s.inTx(ctx)
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
}

type storeSnapshot struct {
	expenses   *table[entity.Expense]
	approvals  *table[entity.Approval]
	users      *table[entity.User]
	history    []*entity.ExpenseHistory
	historySeq int64
}

func (s *Store) snapshot() *storeSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make([]*entity.ExpenseHistory, len(s.history))
	for i, h := range s.history {
		c := *h
		history[i] = &c
	}
	return &storeSnapshot{
		expenses:   s.expenses.snapshot(),
		approvals:  s.approvals.snapshot(),
		users:      s.users.snapshot(),
		history:    history,
		historySeq: s.historySeq,
	}
}

func (s *Store) restore(snap *storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expenses = snap.expenses
	s.approvals = snap.approvals
	s.users = snap.users
	s.history = snap.history
	s.historySeq = snap.historySeq
}

func cloneUser(u *entity.User) *entity.User {
	c := *u
	return &c
}

var _ port.TransactionManager = (*Store)(nil)
