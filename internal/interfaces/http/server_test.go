package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/application/service"
	"github.com/garyjia/expense-router/internal/domain/routing"
	"github.com/garyjia/expense-router/internal/infrastructure/currency"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/memory"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type textWriter struct{}

func (textWriter) Write(_ context.Context, w io.Writer, report *port.ExpenseReport) error {
	_, err := io.WriteString(w, "expense report")
	return err
}

func (textWriter) ContentType() string { return "text/plain" }
func (textWriter) Extension() string   { return ".txt" }

type staticHealth map[string]string

func (h staticHealth) Health(context.Context) map[string]string { return h }

type countingRecorder struct {
	paths []string
}

func (r *countingRecorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	r.paths = append(r.paths, path)
}

func setupTestServer(t *testing.T, config ServerConfig, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	repos := store.Repositories()
	require.NoError(t, memory.DemoDataset().Load(context.Background(), repos))

	router, err := routing.NewRouter(routing.DefaultRules())
	require.NoError(t, err)
	converter, err := currency.NewStaticConverter("USD", map[string]float64{"EUR": 1.5})
	require.NoError(t, err)

	services := Services{
		Expenses: service.NewExpenseService(router, repos, converter, nil, nopLogger{}),
		Reports:  service.NewReportService(router, repos, converter, textWriter{}, nil, nopLogger{}),
		Users:    service.NewUserService(repos.Users, nopLogger{}),
	}
	config.Mode = gin.TestMode
	return NewServer(config, services, nopLogger{}, opts...)
}

func perform(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

type viewBody struct {
	Expense struct {
		ID              string  `json:"id"`
		Status          string  `json:"status"`
		ConvertedAmount float64 `json:"converted_amount"`
	} `json:"expense"`
	Approvals []struct {
		ApproverID string `json:"approver_id"`
		Level      int    `json:"level"`
		Status     string `json:"status"`
	} `json:"approvals"`
	ActiveLevel int  `json:"active_level"`
	Flagged     bool `json:"flagged"`
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := setupTestServer(t, DefaultServerConfig(), WithHealthChecker(staticHealth{"database": "ok"}))
		w := perform(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		var body HealthResponse
		env := decode(t, w, &body)
		assert.True(t, env.Success)
		assert.Equal(t, "healthy", body.Status)
	})

	t.Run("degraded component", func(t *testing.T) {
		s := setupTestServer(t, DefaultServerConfig(), WithHealthChecker(staticHealth{"database": "closed"}))
		w := perform(t, s, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var body HealthResponse
		decode(t, w, &body)
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "closed", body.Components["database"])
	})
}

func TestSubmitExpense(t *testing.T) {
	s := setupTestServer(t, DefaultServerConfig())

	w := perform(t, s, http.MethodPost, "/api/v1/expenses", gin.H{
		"user_id":      "3",
		"amount":       1200,
		"currency":     "USD",
		"category":     "Travel",
		"description":  "Conference hotel",
		"expense_date": "2025-10-02",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var view viewBody
	decode(t, w, &view)
	assert.Equal(t, "pending", view.Expense.Status)
	assert.True(t, view.Flagged)
	assert.Equal(t, 1, view.ActiveLevel)
	require.Len(t, view.Approvals, 2)
	assert.Equal(t, "2", view.Approvals[0].ApproverID)
	assert.Equal(t, "1", view.Approvals[1].ApproverID)
}

func TestSubmitExpense_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   gin.H
		status int
		code   string
	}{
		{"missing category", gin.H{"user_id": "3", "amount": 10}, http.StatusBadRequest, CodeValidation},
		{"bad date", gin.H{"user_id": "3", "amount": 10, "category": "Food", "expense_date": "10/02/2025"}, http.StatusBadRequest, CodeValidation},
		{"negative amount", gin.H{"user_id": "3", "amount": -5, "category": "Food"}, http.StatusBadRequest, CodeValidation},
		{"unknown submitter", gin.H{"user_id": "ghost", "amount": 10, "category": "Food"}, http.StatusNotFound, CodeNotFound},
	}

	s := setupTestServer(t, DefaultServerConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(t, s, http.MethodPost, "/api/v1/expenses", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			env := decode(t, w, nil)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestDraftLifecycle(t *testing.T) {
	s := setupTestServer(t, DefaultServerConfig())

	w := perform(t, s, http.MethodPost, "/api/v1/expenses/drafts", gin.H{
		"user_id":  "4",
		"amount":   80,
		"category": "Office",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var draft struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decode(t, w, &draft)
	assert.Equal(t, "draft", draft.Status)

	w = perform(t, s, http.MethodPost, "/api/v1/expenses/"+draft.ID+"/submit", gin.H{"actor_id": "3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(t, s, http.MethodPost, "/api/v1/expenses/"+draft.ID+"/submit", gin.H{"actor_id": "4"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view viewBody
	decode(t, w, &view)
	assert.Equal(t, "pending", view.Expense.Status)
	require.Len(t, view.Approvals, 1)

	w = perform(t, s, http.MethodPost, "/api/v1/expenses/"+draft.ID+"/submit", gin.H{"actor_id": "4"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeInvalidTransition, decode(t, w, nil).Code)
}

func TestDecide(t *testing.T) {
	t.Run("approve final level", func(t *testing.T) {
		s := setupTestServer(t, DefaultServerConfig())
		w := perform(t, s, http.MethodPost, "/api/v1/expenses/exp1/approvals/1", gin.H{
			"approver_id": "2",
			"decision":    "approve",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var view viewBody
		decode(t, w, &view)
		assert.Equal(t, "approved", view.Expense.Status)
		assert.Equal(t, 0, view.ActiveLevel)

		w = perform(t, s, http.MethodGet, "/api/v1/expenses/exp1/history", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var history []struct {
			Action string `json:"action"`
		}
		decode(t, w, &history)
		require.Len(t, history, 2)
		assert.Equal(t, "approve", history[1].Action)
	})

	tests := []struct {
		name   string
		path   string
		body   gin.H
		status int
		code   string
	}{
		{"out of sequence", "/api/v1/expenses/exp2/approvals/2", gin.H{"approver_id": "1", "decision": "approved"}, http.StatusConflict, CodeOutOfSequence},
		{"rejection needs comment", "/api/v1/expenses/exp1/approvals/1", gin.H{"approver_id": "2", "decision": "rejected"}, http.StatusBadRequest, CodeMissingComment},
		{"unknown decision", "/api/v1/expenses/exp1/approvals/1", gin.H{"approver_id": "2", "decision": "maybe"}, http.StatusBadRequest, CodeInvalidDecision},
		{"missing level", "/api/v1/expenses/exp1/approvals/3", gin.H{"approver_id": "2", "decision": "approved"}, http.StatusNotFound, CodeLevelNotFound},
		{"decided expense", "/api/v1/expenses/exp3/approvals/1", gin.H{"approver_id": "2", "decision": "approved"}, http.StatusConflict, CodeInvalidTransition},
		{"unknown expense", "/api/v1/expenses/nope/approvals/1", gin.H{"approver_id": "2", "decision": "approved"}, http.StatusNotFound, CodeNotFound},
		{"bad level", "/api/v1/expenses/exp1/approvals/zero", gin.H{"approver_id": "2", "decision": "approved"}, http.StatusBadRequest, CodeValidation},
		{"submitter approves own expense", "/api/v1/expenses/exp1/approvals/1", gin.H{"approver_id": "3", "decision": "approved"}, http.StatusForbidden, CodeNotAssigned},
		{"unknown approver", "/api/v1/expenses/exp1/approvals/1", gin.H{"approver_id": "no-such-user", "decision": "approved"}, http.StatusForbidden, CodeNotAssigned},
		{"admin decides manager level", "/api/v1/expenses/exp2/approvals/1", gin.H{"approver_id": "1", "decision": "approved"}, http.StatusForbidden, CodeNotAssigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, DefaultServerConfig())
			w := perform(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode(t, w, nil).Code)
		})
	}

	t.Run("rejected caller leaves the queue intact", func(t *testing.T) {
		s := setupTestServer(t, DefaultServerConfig())
		w := perform(t, s, http.MethodPost, "/api/v1/expenses/exp1/approvals/1", gin.H{
			"approver_id": "3",
			"decision":    "approved",
		})
		require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

		w = perform(t, s, http.MethodGet, "/api/v1/expenses/exp1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var view viewBody
		decode(t, w, &view)
		assert.Equal(t, "pending", view.Expense.Status)
		assert.Equal(t, 1, view.ActiveLevel)
		require.Len(t, view.Approvals, 1)
		assert.Equal(t, "2", view.Approvals[0].ApproverID)

		w = perform(t, s, http.MethodGet, "/api/v1/approvals/pending?approver_id=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var queue []json.RawMessage
		decode(t, w, &queue)
		assert.Len(t, queue, 2)
	})
}

func TestListAndQueues(t *testing.T) {
	s := setupTestServer(t, DefaultServerConfig())

	w := perform(t, s, http.MethodGet, "/api/v1/expenses?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var expenses []struct {
		ID string `json:"id"`
	}
	decode(t, w, &expenses)
	assert.Len(t, expenses, 2)

	w = perform(t, s, http.MethodGet, "/api/v1/approvals/pending?approver_id=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var queue []struct {
		Approval struct {
			ExpenseID string `json:"expense_id"`
		} `json:"approval"`
	}
	decode(t, w, &queue)
	assert.Len(t, queue, 2)

	// Admin's level 2 on exp2 is blocked until the manager approves
	w = perform(t, s, http.MethodGet, "/api/v1/approvals/pending?approver_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &queue)
	assert.Empty(t, queue)
}

func TestRules(t *testing.T) {
	s := setupTestServer(t, DefaultServerConfig())

	w := perform(t, s, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rules []struct {
		ID string `json:"id"`
	}
	decode(t, w, &rules)
	assert.Len(t, rules, 3)

	w = perform(t, s, http.MethodGet, "/api/v1/rules/match?amount=2500&currency=USD", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var match struct {
		Rule struct {
			ID string `json:"id"`
		} `json:"rule"`
		Flagged bool `json:"flagged"`
	}
	decode(t, w, &match)
	assert.Equal(t, "rule3", match.Rule.ID)
	assert.True(t, match.Flagged)

	w = perform(t, s, http.MethodGet, "/api/v1/rules/match?amount=0&currency=USD", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &match)
	assert.Equal(t, "rule1", match.Rule.ID)
	assert.False(t, match.Flagged)

	for _, amount := range []string{"abc", "-1", "NaN"} {
		w = perform(t, s, http.MethodGet, "/api/v1/rules/match?amount="+amount+"&currency=USD", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, amount)
		assert.Equal(t, CodeValidation, decode(t, w, nil).Code, amount)
	}
}

func TestUsers(t *testing.T) {
	s := setupTestServer(t, DefaultServerConfig())

	w := perform(t, s, http.MethodPost, "/api/v1/users", gin.H{
		"name":       "Lena Finance",
		"email":      "Lena@Monex.com",
		"role":       "employee",
		"manager_id": "2",
		"department": "Finance",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var user struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	decode(t, w, &user)
	assert.Equal(t, "lena@monex.com", user.Email)

	w = perform(t, s, http.MethodGet, "/api/v1/users/"+user.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(t, s, http.MethodGet, "/api/v1/users?role=employee", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []struct {
		ID string `json:"id"`
	}
	decode(t, w, &users)
	assert.Len(t, users, 4)

	w = perform(t, s, http.MethodPost, "/api/v1/users/"+user.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deactivated struct {
		Status string `json:"status"`
	}
	decode(t, w, &deactivated)
	assert.Equal(t, "inactive", deactivated.Status)

	w = perform(t, s, http.MethodGet, "/api/v1/users/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReports(t *testing.T) {
	s := setupTestServer(t, DefaultServerConfig())

	w := perform(t, s, http.MethodGet, "/api/v1/reports/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary port.Summary
	decode(t, w, &summary)
	assert.Equal(t, 5, summary.TotalCount)

	w = perform(t, s, http.MethodGet, "/api/v1/reports/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var categories []port.BreakdownEntry
	decode(t, w, &categories)
	assert.Len(t, categories, 2)

	w = perform(t, s, http.MethodGet, "/api/v1/reports/monthly?year=2025", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var months []port.MonthlyTotal
	decode(t, w, &months)
	assert.Len(t, months, 12)

	w = perform(t, s, http.MethodGet, "/api/v1/reports/monthly?year=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(t, s, http.MethodGet, "/api/v1/reports/approvers/2", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = perform(t, s, http.MethodGet, "/api/v1/reports/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".txt")
	assert.Equal(t, "expense report", w.Body.String())

	w = perform(t, s, http.MethodPost, "/api/v1/reports/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeUnavailable, decode(t, w, nil).Code)
}

func TestMiddleware(t *testing.T) {
	t.Run("rate limit", func(t *testing.T) {
		config := DefaultServerConfig()
		config.RateLimit = 0.001
		config.RateBurst = 1
		s := setupTestServer(t, config)

		assert.Equal(t, http.StatusOK, perform(t, s, http.MethodGet, "/api/v1/rules", nil).Code)
		w := perform(t, s, http.MethodGet, "/api/v1/rules", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, CodeRateLimited, decode(t, w, nil).Code)

		// Health stays outside the limiter
		assert.Equal(t, http.StatusOK, perform(t, s, http.MethodGet, "/health", nil).Code)
	})

	t.Run("cors preflight", func(t *testing.T) {
		s := setupTestServer(t, DefaultServerConfig())
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/expenses", nil)
		req.Header.Set("Origin", "https://app.example.com")
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("metrics recorder sees route templates", func(t *testing.T) {
		recorder := &countingRecorder{}
		s := setupTestServer(t, DefaultServerConfig(), WithMetrics(recorder, http.NotFoundHandler()))

		perform(t, s, http.MethodGet, "/api/v1/expenses/exp1", nil)
		require.NotEmpty(t, recorder.paths)
		assert.Equal(t, "/api/v1/expenses/:id", recorder.paths[len(recorder.paths)-1])
	})
}
