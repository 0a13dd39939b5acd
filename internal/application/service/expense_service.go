package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/event"
	"github.com/garyjia/expense-router/internal/domain/routing"
	"github.com/garyjia/expense-router/pkg/utils"
)

const tracerName = "github.com/garyjia/expense-router/internal/application/service"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Publisher delivers domain events to subscribers after a change is committed
type Publisher interface {
	Publish(ctx context.Context, evts ...*event.Event)
}

// SubmitRequest carries a new expense
type SubmitRequest struct {
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ExpenseDate time.Time `json:"expense_date"`
	ReceiptURL  string    `json:"receipt_url,omitempty"`
}

// DecideRequest carries one approver decision
type DecideRequest struct {
	ExpenseID  string                `json:"expense_id"`
	Level      int                   `json:"level"`
	ApproverID string                `json:"approver_id"`
	Decision   entity.ApprovalStatus `json:"decision"`
	Comment    string                `json:"comment,omitempty"`
}

// ExpenseView is an expense together with its routing state
type ExpenseView struct {
	Expense     *entity.Expense    `json:"expense"`
	Chain       []*entity.Approval `json:"approvals"`
	ActiveLevel int                `json:"active_level"`
	Flagged     bool               `json:"flagged"`
}

// PendingApproval is one entry of an approver's queue
type PendingApproval struct {
	Approval *entity.Approval `json:"approval"`
	Expense  *entity.Expense  `json:"expense"`
	Flagged  bool             `json:"flagged"`
}

// RuleMatch describes how an amount would be routed
type RuleMatch struct {
	Amount   float64              `json:"amount"`
	Currency string               `json:"currency"`
	Rule     *entity.ApprovalRule `json:"rule"`
	Fallback bool                 `json:"fallback"`
	Flagged  bool                 `json:"flagged"`
}

// ExpenseService submits expenses and records approval decisions
type ExpenseService interface {
	Submit(ctx context.Context, req SubmitRequest) (*ExpenseView, error)
	SaveDraft(ctx context.Context, req SubmitRequest) (*entity.Expense, error)
	SubmitDraft(ctx context.Context, expenseID, actorID string) (*ExpenseView, error)
	Decide(ctx context.Context, req DecideRequest) (*ExpenseView, error)
	Get(ctx context.Context, id string) (*ExpenseView, error)
	List(ctx context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error)
	PendingFor(ctx context.Context, approverID string) ([]*PendingApproval, error)
	History(ctx context.Context, id string) ([]*entity.ExpenseHistory, error)
	Rules() []entity.ApprovalRule
	Match(amount float64, currency string) (*RuleMatch, error)
}

// ExpenseOption configures the expense service
type ExpenseOption func(*expenseServiceImpl)

// WithFallbackRule routes amounts no rule covers through the named rule instead of failing
func WithFallbackRule(ruleID string) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.fallbackRuleID = ruleID
	}
}

// WithTracer overrides the global tracer
func WithTracer(tracer trace.Tracer) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.tracer = tracer
	}
}

// WithNow overrides the clock used for expense timestamps
func WithNow(now func() time.Time) ExpenseOption {
	return func(s *expenseServiceImpl) {
		s.now = now
	}
}

type expenseServiceImpl struct {
	router         *routing.Router
	expenseRepo    port.ExpenseRepository
	approvalRepo   port.ApprovalRepository
	userRepo       port.UserRepository
	historyRepo    port.HistoryRepository
	txManager      port.TransactionManager
	converter      port.CurrencyConverter
	publisher      Publisher
	approvers      *approverResolver
	logger         Logger
	tracer         trace.Tracer
	fallbackRuleID string
	now            func() time.Time
}

// NewExpenseService creates a new ExpenseService
func NewExpenseService(
	router *routing.Router,
	repos port.Repositories,
	converter port.CurrencyConverter,
	publisher Publisher,
	logger Logger,
	opts ...ExpenseOption,
) ExpenseService {
	s := &expenseServiceImpl{
		router:       router,
		expenseRepo:  repos.Expenses,
		approvalRepo: repos.Approvals,
		userRepo:     repos.Users,
		historyRepo:  repos.History,
		txManager:    repos.Tx,
		converter:    converter,
		publisher:    publisher,
		approvers:    &approverResolver{users: repos.Users},
		logger:       logger,
		tracer:       otel.Tracer(tracerName),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates, routes and persists a new expense in one step
func (s *expenseServiceImpl) Submit(ctx context.Context, req SubmitRequest) (view *ExpenseView, err error) {
	ctx, span := s.tracer.Start(ctx, "ExpenseService.Submit",
		trace.WithAttributes(attribute.String("user.id", req.UserID)))
	defer func() { endSpan(span, err) }()

	submitter, expense, err := s.newExpense(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("expense.id", expense.ID),
		attribute.Float64("expense.converted_amount", expense.ConvertedAmount),
	)

	chain, ruleID, err := s.route(ctx, submitter, expense)
	if err != nil {
		s.logger.Error("Failed to route expense", "error", err, "user_id", req.UserID, "amount", expense.ConvertedAmount)
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.expenseRepo.Create(txCtx, expense); err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		if err := s.approvalRepo.CreateBatch(txCtx, chain); err != nil {
			return fmt.Errorf("create approvals: %w", err)
		}
		return s.recordHistory(txCtx, expense, submitter.ID, entity.ActionSubmit, 0, entity.ExpenseStatusDraft, "")
	})
	if err != nil {
		s.logger.Error("Failed to submit expense", "error", err, "user_id", req.UserID)
		return nil, err
	}

	view = s.view(expense, chain)
	s.publishSubmitted(ctx, view, ruleID)
	s.logger.Info("Expense submitted", "id", expense.ID, "rule_id", ruleID, "levels", len(chain), "flagged", view.Flagged)
	return view, nil
}

// SaveDraft stores an expense without routing it
func (s *expenseServiceImpl) SaveDraft(ctx context.Context, req SubmitRequest) (expense *entity.Expense, err error) {
	ctx, span := s.tracer.Start(ctx, "ExpenseService.SaveDraft")
	defer func() { endSpan(span, err) }()

	submitter, expense, err := s.newExpense(ctx, req)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.expenseRepo.Create(txCtx, expense); err != nil {
			return fmt.Errorf("create expense: %w", err)
		}
		return s.recordHistory(txCtx, expense, submitter.ID, entity.ActionSaveDraft, 0, "", "")
	})
	if err != nil {
		s.logger.Error("Failed to save draft", "error", err, "user_id", req.UserID)
		return nil, err
	}

	s.logger.Info("Draft saved", "id", expense.ID, "user_id", submitter.ID)
	return expense, nil
}

// SubmitDraft routes a previously saved draft
func (s *expenseServiceImpl) SubmitDraft(ctx context.Context, expenseID, actorID string) (view *ExpenseView, err error) {
	ctx, span := s.tracer.Start(ctx, "ExpenseService.SubmitDraft",
		trace.WithAttributes(attribute.String("expense.id", expenseID)))
	defer func() { endSpan(span, err) }()

	var (
		expense *entity.Expense
		chain   []*entity.Approval
		ruleID  string
	)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if expense, err = s.expenseRepo.GetByID(txCtx, expenseID); err != nil {
			return err
		}
		if actorID != "" && actorID != expense.UserID {
			return &ValidationError{Field: "actor_id", Message: "only the submitter can submit a draft"}
		}

		submitter, err := s.userRepo.GetByID(txCtx, expense.UserID)
		if err != nil {
			return fmt.Errorf("load submitter: %w", err)
		}

		if chain, ruleID, err = s.route(txCtx, submitter, expense); err != nil {
			return err
		}
		if err := s.expenseRepo.Update(txCtx, expense); err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		if err := s.approvalRepo.CreateBatch(txCtx, chain); err != nil {
			return fmt.Errorf("create approvals: %w", err)
		}
		return s.recordHistory(txCtx, expense, submitter.ID, entity.ActionSubmit, 0, entity.ExpenseStatusDraft, "")
	})
	if err != nil {
		s.logger.Error("Failed to submit draft", "error", err, "id", expenseID)
		return nil, err
	}

	view = s.view(expense, chain)
	s.publishSubmitted(ctx, view, ruleID)
	s.logger.Info("Draft submitted", "id", expense.ID, "rule_id", ruleID, "levels", len(chain))
	return view, nil
}

// Decide records an approval or rejection at one level of an expense's chain
func (s *expenseServiceImpl) Decide(ctx context.Context, req DecideRequest) (view *ExpenseView, err error) {
	ctx, span := s.tracer.Start(ctx, "ExpenseService.Decide",
		trace.WithAttributes(
			attribute.String("expense.id", req.ExpenseID),
			attribute.Int("approval.level", req.Level),
			attribute.String("approval.decision", string(req.Decision)),
		))
	defer func() { endSpan(span, err) }()

	if err := utils.ValidateRequired(map[string]string{
		"expense_id":  req.ExpenseID,
		"approver_id": req.ApproverID,
	}, "expense_id", "approver_id"); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	var (
		expense *entity.Expense
		chain   []*entity.Approval
		outcome *routing.Outcome
	)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		if expense, err = s.expenseRepo.GetByID(txCtx, req.ExpenseID); err != nil {
			return err
		}
		if chain, err = s.approvalRepo.GetByExpenseID(txCtx, req.ExpenseID); err != nil {
			return fmt.Errorf("load approvals: %w", err)
		}

		outcome, err = s.router.RecordDecision(txCtx, expense, chain, routing.Decision{
			Level:      req.Level,
			ApproverID: req.ApproverID,
			Decision:   req.Decision,
			Comment:    req.Comment,
		})
		if err != nil {
			return err
		}

		if err := s.approvalRepo.Update(txCtx, outcome.Approval); err != nil {
			return fmt.Errorf("update approval: %w", err)
		}
		if outcome.Terminal {
			if err := s.expenseRepo.Update(txCtx, expense); err != nil {
				return fmt.Errorf("update expense: %w", err)
			}
		}

		action := entity.ActionApprove
		if req.Decision == entity.ApprovalStatusRejected {
			action = entity.ActionReject
		}
		return s.recordHistory(txCtx, expense, req.ApproverID, action, req.Level, outcome.PreviousStatus, outcome.Approval.Comment)
	})
	if err != nil {
		s.logger.Error("Failed to record decision", "error", err, "id", req.ExpenseID, "level", req.Level)
		return nil, err
	}

	view = s.view(expense, chain)
	s.publishDecision(ctx, view, outcome, req.ApproverID)
	s.logger.Info("Decision recorded", "id", expense.ID, "level", req.Level, "decision", req.Decision, "status", expense.Status)
	return view, nil
}

// Get returns the expense with its chain
func (s *expenseServiceImpl) Get(ctx context.Context, id string) (*ExpenseView, error) {
	expense, err := s.expenseRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.approvalRepo.GetByExpenseID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load approvals", "error", err, "id", id)
		return nil, fmt.Errorf("load approvals: %w", err)
	}
	return s.view(expense, chain), nil
}

// List returns expenses matching the filter
func (s *expenseServiceImpl) List(ctx context.Context, filter port.ExpenseFilter) ([]*entity.Expense, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, &ValidationError{Field: "limit", Message: "limit and offset must not be negative"}
	}
	expenses, err := s.expenseRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list expenses", "error", err)
		return nil, err
	}
	return expenses, nil
}

// PendingFor returns the approvals currently actionable by the approver
func (s *expenseServiceImpl) PendingFor(ctx context.Context, approverID string) ([]*PendingApproval, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, &ValidationError{Field: "approver_id", Message: "is required"}
	}

	assigned, err := s.approvalRepo.ListByApprover(ctx, approverID)
	if err != nil {
		s.logger.Error("Failed to list approvals", "error", err, "approver_id", approverID)
		return nil, err
	}

	queue := make([]*PendingApproval, 0, len(assigned))
	for _, a := range assigned {
		if a.Status != entity.ApprovalStatusPending {
			continue
		}
		view, err := s.Get(ctx, a.ExpenseID)
		if err != nil {
			return nil, err
		}
		if view.Expense.Status != entity.ExpenseStatusPending || view.ActiveLevel != a.Level {
			continue
		}
		queue = append(queue, &PendingApproval{Approval: a, Expense: view.Expense, Flagged: view.Flagged})
	}
	return queue, nil
}

// History returns the audit trail of an expense
func (s *expenseServiceImpl) History(ctx context.Context, id string) ([]*entity.ExpenseHistory, error) {
	if _, err := s.expenseRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.historyRepo.GetByExpenseID(ctx, id)
}

// Rules returns the configured rules in evaluation order
func (s *expenseServiceImpl) Rules() []entity.ApprovalRule {
	return s.router.Rules()
}

// Match reports which rule an amount would be routed through
func (s *expenseServiceImpl) Match(amount float64, currency string) (*RuleMatch, error) {
	if err := utils.ValidateNonNegativeAmount(amount); err != nil {
		return nil, invalid("amount", err)
	}
	converted, err := s.converter.Convert(amount, currency)
	if err != nil {
		return nil, invalid("currency", err)
	}

	match := &RuleMatch{
		Amount:   converted,
		Currency: s.converter.ReportingCurrency(),
		Flagged:  s.router.IsFlagged(&entity.Expense{ConvertedAmount: converted}),
	}
	match.Rule, match.Fallback, err = s.selectRule(converted)
	if err != nil {
		return nil, err
	}
	return match, nil
}

func (s *expenseServiceImpl) newExpense(ctx context.Context, req SubmitRequest) (*entity.User, *entity.Expense, error) {
	if err := utils.ValidateRequired(map[string]string{
		"user_id":  req.UserID,
		"category": req.Category,
	}, "user_id", "category"); err != nil {
		return nil, nil, &ValidationError{Message: err.Error()}
	}
	if err := utils.ValidateAmount(req.Amount, 0); err != nil {
		return nil, nil, invalid("amount", err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.converter.ReportingCurrency()
	}
	if err := utils.ValidateCurrencyCode(currency); err != nil {
		return nil, nil, invalid("currency", err)
	}
	converted, err := s.converter.Convert(req.Amount, currency)
	if err != nil {
		return nil, nil, invalid("currency", err)
	}

	submitter, err := s.userRepo.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !submitter.IsActive() {
		return nil, nil, &ValidationError{Field: "user_id", Message: "user is inactive"}
	}

	now := s.now()
	expenseDate := req.ExpenseDate
	if expenseDate.IsZero() {
		expenseDate = now
	}

	return submitter, &entity.Expense{
		ID:              uuid.NewString(),
		UserID:          submitter.ID,
		Amount:          req.Amount,
		Currency:        currency,
		ConvertedAmount: converted,
		Category:        utils.SanitizeString(req.Category),
		Description:     utils.SanitizeString(req.Description),
		ReceiptURL:      strings.TrimSpace(req.ReceiptURL),
		Status:          entity.ExpenseStatusDraft,
		ExpenseDate:     expenseDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// route builds the chain for a draft and assigns approvers; the expense moves to
// pending only when every role could be filled.
func (s *expenseServiceImpl) route(ctx context.Context, submitter *entity.User, expense *entity.Expense) ([]*entity.Approval, string, error) {
	rule, _, err := s.selectRule(expense.ConvertedAmount)
	if err != nil {
		return nil, "", err
	}

	draft := expense.Clone()
	chain, err := s.router.CreateApprovalChainWithRule(draft, rule)
	if err != nil {
		return nil, "", err
	}
	if err := s.approvers.assign(ctx, submitter, chain); err != nil {
		return nil, "", err
	}

	*expense = *draft
	return chain, rule.ID, nil
}

func (s *expenseServiceImpl) selectRule(amount float64) (*entity.ApprovalRule, bool, error) {
	rule, err := s.router.SelectRule(amount)
	if err == nil {
		return rule, false, nil
	}

	var noMatch *routing.NoMatchingRuleError
	if !errors.As(err, &noMatch) || s.fallbackRuleID == "" {
		return nil, false, err
	}
	fallback, ok := s.router.Rule(s.fallbackRuleID)
	if !ok {
		return nil, false, fmt.Errorf("fallback rule %q is not configured: %w", s.fallbackRuleID, err)
	}
	return fallback, true, nil
}

func (s *expenseServiceImpl) recordHistory(ctx context.Context, expense *entity.Expense, actorID, action string, level int, previous entity.ExpenseStatus, comment string) error {
	history := &entity.ExpenseHistory{
		ExpenseID:      expense.ID,
		ActorID:        actorID,
		Action:         action,
		Level:          level,
		PreviousStatus: previous,
		NewStatus:      expense.Status,
		Comment:        comment,
		Timestamp:      s.now(),
	}
	if err := s.historyRepo.Create(ctx, history); err != nil {
		return fmt.Errorf("create history: %w", err)
	}
	return nil
}

func (s *expenseServiceImpl) view(expense *entity.Expense, chain []*entity.Approval) *ExpenseView {
	return &ExpenseView{
		Expense:     expense,
		Chain:       chain,
		ActiveLevel: routing.ActiveLevel(chain),
		Flagged:     s.router.IsFlagged(expense),
	}
}

func (s *expenseServiceImpl) publishSubmitted(ctx context.Context, view *ExpenseView, ruleID string) {
	if s.publisher == nil {
		return
	}
	expense := view.Expense
	submitted := event.NewEvent(event.TypeExpenseSubmitted, expense.ID, expense.UserID, map[string]interface{}{
		event.KeyAmount:   expense.ConvertedAmount,
		event.KeyCategory: expense.Category,
		event.KeyRuleID:   ruleID,
		event.KeyLevels:   len(view.Chain),
		event.KeyStatus:   string(expense.Status),
	})
	evts := []*event.Event{submitted}
	if view.Flagged {
		evts = append(evts, submitted.Follow(event.TypeExpenseFlagged, map[string]interface{}{
			event.KeyAmount:   expense.ConvertedAmount,
			event.KeyCategory: expense.Category,
		}))
	}
	s.publisher.Publish(context.WithoutCancel(ctx), evts...)
}

func (s *expenseServiceImpl) publishDecision(ctx context.Context, view *ExpenseView, outcome *routing.Outcome, actorID string) {
	if s.publisher == nil {
		return
	}
	expense := view.Expense
	recorded := event.NewEvent(event.TypeApprovalRecorded, expense.ID, actorID, map[string]interface{}{
		event.KeyLevel:    outcome.Approval.Level,
		event.KeyDecision: string(outcome.Approval.Status),
		event.KeyStatus:   string(outcome.Status),
		event.KeyAmount:   expense.ConvertedAmount,
	})
	evts := []*event.Event{recorded}
	if outcome.Terminal {
		terminal := event.TypeExpenseApproved
		if outcome.Status == entity.ExpenseStatusRejected {
			terminal = event.TypeExpenseRejected
		}
		evts = append(evts, recorded.Follow(terminal, map[string]interface{}{
			event.KeyAmount:   expense.ConvertedAmount,
			event.KeyCategory: expense.Category,
			event.KeyLevel:    outcome.Approval.Level,
		}))
	}
	s.publisher.Publish(context.WithoutCancel(ctx), evts...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
