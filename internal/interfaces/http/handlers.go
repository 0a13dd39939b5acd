package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/application/service"
	"github.com/garyjia/expense-router/internal/domain/entity"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	expenses service.ExpenseService
	reports  service.ReportService
	users    service.UserService
	health   HealthChecker
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		expenses: services.Expenses,
		reports:  services.Reports,
		users:    services.Users,
		health:   health,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// ExpenseRequest is the body of expense submission and draft creation
type ExpenseRequest struct {
	UserID      string  `json:"user_id" binding:"required"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category" binding:"required"`
	Description string  `json:"description"`
	ExpenseDate string  `json:"expense_date"`
	ReceiptURL  string  `json:"receipt_url"`
}

// SubmitDraftRequest is the body of a draft submission
type SubmitDraftRequest struct {
	ActorID string `json:"actor_id"`
}

// DecisionRequest is the body of an approval decision
type DecisionRequest struct {
	ApproverID string `json:"approver_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Comment    string `json:"comment"`
}

// ListExpensesRequest represents query parameters for listing expenses
type ListExpensesRequest struct {
	UserID   string `form:"user_id"`
	Status   string `form:"status"`
	Category string `form:"category"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		response.Components = h.health.Health(c.Request.Context())
		for _, state := range response.Components {
			if state != "ok" {
				response.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
	}

	c.JSON(status, Response{
		Success: status == http.StatusOK,
		Data:    response,
	})
}

// ListRules handles GET /api/v1/rules
func (h *Handlers) ListRules(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Success: true, Data: h.expenses.Rules()})
}

// MatchRule handles GET /api/v1/rules/match?amount=&currency=
func (h *Handlers) MatchRule(c *gin.Context) {
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil {
		badRequest(c, "amount must be a number")
		return
	}

	match, err := h.expenses.Match(amount, c.Query("currency"))
	if err != nil {
		h.respondError(c, "match rule", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: match})
}

// SubmitExpense handles POST /api/v1/expenses
func (h *Handlers) SubmitExpense(c *gin.Context) {
	req, ok := bindExpense(c)
	if !ok {
		return
	}

	view, err := h.expenses.Submit(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "submit expense", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: view})
}

// SaveDraft handles POST /api/v1/expenses/drafts
func (h *Handlers) SaveDraft(c *gin.Context) {
	req, ok := bindExpense(c)
	if !ok {
		return
	}

	expense, err := h.expenses.SaveDraft(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "save draft", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: expense})
}

// SubmitDraft handles POST /api/v1/expenses/:id/submit
func (h *Handlers) SubmitDraft(c *gin.Context) {
	var req SubmitDraftRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}

	view, err := h.expenses.SubmitDraft(c.Request.Context(), c.Param("id"), req.ActorID)
	if err != nil {
		h.respondError(c, "submit draft", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// ListExpenses handles GET /api/v1/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	var req ListExpensesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	if req.Limit <= 0 || req.Limit > maxPageSize {
		req.Limit = defaultPageSize
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	expenses, err := h.expenses.List(c.Request.Context(), port.ExpenseFilter{
		UserID:   req.UserID,
		Status:   entity.ExpenseStatus(strings.ToLower(req.Status)),
		Category: req.Category,
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		h.respondError(c, "list expenses", err)
		return
	}
	if expenses == nil {
		expenses = []*entity.Expense{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: expenses})
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	view, err := h.expenses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get expense", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// GetHistory handles GET /api/v1/expenses/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.expenses.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get history", err)
		return
	}
	if history == nil {
		history = []*entity.ExpenseHistory{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// Decide handles POST /api/v1/expenses/:id/approvals/:level
func (h *Handlers) Decide(c *gin.Context) {
	level, err := strconv.Atoi(c.Param("level"))
	if err != nil || level < 1 {
		badRequest(c, "level must be a positive integer")
		return
	}

	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "approver_id and decision are required")
		return
	}

	view, err := h.expenses.Decide(c.Request.Context(), service.DecideRequest{
		ExpenseID:  c.Param("id"),
		Level:      level,
		ApproverID: req.ApproverID,
		Decision:   parseDecision(req.Decision),
		Comment:    req.Comment,
	})
	if err != nil {
		h.respondError(c, "record decision", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: view})
}

// PendingApprovals handles GET /api/v1/approvals/pending?approver_id=
func (h *Handlers) PendingApprovals(c *gin.Context) {
	queue, err := h.expenses.PendingFor(c.Request.Context(), c.Query("approver_id"))
	if err != nil {
		h.respondError(c, "pending approvals", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: queue})
}

// ListUsers handles GET /api/v1/users?role=
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), entity.Role(strings.ToLower(c.Query("role"))))
	if err != nil {
		h.respondError(c, "list users", err)
		return
	}
	if users == nil {
		users = []*entity.User{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: users})
}

// CreateUser handles POST /api/v1/users
func (h *Handlers) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	user, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: user})
}

// GetUser handles GET /api/v1/users/:id
func (h *Handlers) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// DeactivateUser handles POST /api/v1/users/:id/deactivate
func (h *Handlers) DeactivateUser(c *gin.Context) {
	user, err := h.users.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "deactivate user", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: user})
}

// Summary handles GET /api/v1/reports/summary
func (h *Handlers) Summary(c *gin.Context) {
	summary, err := h.reports.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, "summary", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// CategoryBreakdown handles GET /api/v1/reports/categories
func (h *Handlers) CategoryBreakdown(c *gin.Context) {
	entries, err := h.reports.CategoryBreakdown(c.Request.Context())
	if err != nil {
		h.respondError(c, "category breakdown", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// DepartmentBreakdown handles GET /api/v1/reports/departments
func (h *Handlers) DepartmentBreakdown(c *gin.Context) {
	entries, err := h.reports.DepartmentBreakdown(c.Request.Context())
	if err != nil {
		h.respondError(c, "department breakdown", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ApproverStats handles GET /api/v1/reports/approvers/:id
func (h *Handlers) ApproverStats(c *gin.Context) {
	stats, err := h.reports.ApproverStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "approver stats", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// MonthlyTrend handles GET /api/v1/reports/monthly?year=
func (h *Handlers) MonthlyTrend(c *gin.Context) {
	year := time.Now().Year()
	if raw := c.Query("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "year must be an integer")
			return
		}
		year = parsed
	}

	months, err := h.reports.MonthlyTrend(c.Request.Context(), year)
	if err != nil {
		h.respondError(c, "monthly trend", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: months})
}

// ExportReport handles GET /api/v1/reports/export
func (h *Handlers) ExportReport(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.reports.Export(c.Request.Context(), &buf); err != nil {
		h.respondError(c, "export report", err)
		return
	}

	name := fmt.Sprintf("expense-report-%s%s", time.Now().Format("20060102"), h.reports.Extension())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, h.reports.ContentType(), buf.Bytes())
}

// ArchiveReport handles POST /api/v1/reports/archive
func (h *Handlers) ArchiveReport(c *gin.Context) {
	path, err := h.reports.Archive(c.Request.Context())
	if err != nil {
		h.respondError(c, "archive report", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: gin.H{"path": path}})
}

func bindExpense(c *gin.Context) (service.SubmitRequest, bool) {
	var req ExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id and category are required")
		return service.SubmitRequest{}, false
	}

	expenseDate, err := parseDate(req.ExpenseDate)
	if err != nil {
		badRequest(c, "expense_date must be YYYY-MM-DD or RFC 3339")
		return service.SubmitRequest{}, false
	}

	return service.SubmitRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		ExpenseDate: expenseDate,
		ReceiptURL:  req.ReceiptURL,
	}, true
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// parseDecision accepts both the status form ("approved") and the verb form ("approve")
func parseDecision(raw string) entity.ApprovalStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approve", "approved":
		return entity.ApprovalStatusApproved
	case "reject", "rejected":
		return entity.ApprovalStatusRejected
	}
	return entity.ApprovalStatus(raw)
}
