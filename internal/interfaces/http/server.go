// Package http provides the HTTP adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-router/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// RequestRecorder records served requests for monitoring
type RequestRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// HealthChecker reports the status of each component by name
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    float64
	RateBurst    int
	CORSOrigins  []string
	MetricsPath  string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		Mode:         gin.ReleaseMode,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		RateLimit:    50,
		RateBurst:    100,
		CORSOrigins:  []string{"*"},
		MetricsPath:  "/metrics",
	}
}

// Services groups the application services exposed over HTTP
type Services struct {
	Expenses service.ExpenseService
	Reports  service.ReportService
	Users    service.UserService
}

// Option configures the server
type Option func(*Server)

// WithMetrics records every request and serves handler on the metrics path
func WithMetrics(recorder RequestRecorder, handler http.Handler) Option {
	return func(s *Server) {
		s.recorder = recorder
		s.metricsHandler = handler
	}
}

// WithHealthChecker reports component status on /health
func WithHealthChecker(checker HealthChecker) Option {
	return func(s *Server) {
		s.health = checker
	}
}

// Server is the HTTP server adapter
type Server struct {
	config         ServerConfig
	httpServer     *http.Server
	router         *gin.Engine
	services       Services
	recorder       RequestRecorder
	metricsHandler http.Handler
	health         HealthChecker
	logger         Logger
}

// NewServer creates a new HTTP server over the given services
func NewServer(config ServerConfig, services Services, logger Logger, opts ...Option) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(s.recoveryHandler))
	s.router.Use(s.loggingMiddleware())
	s.router.Use(tracingMiddleware())
	if s.recorder != nil {
		s.router.Use(metricsMiddleware(s.recorder))
	}
	s.router.Use(corsMiddleware(s.config.CORSOrigins))
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.health, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.metricsHandler != nil && s.config.MetricsPath != "" {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.metricsHandler))
	}

	api := s.router.Group("/api/v1")
	if s.config.RateLimit > 0 {
		api.Use(rateLimitMiddleware(s.config.RateLimit, s.config.RateBurst))
	}

	api.GET("/rules", h.ListRules)
	api.GET("/rules/match", h.MatchRule)

	expenses := api.Group("/expenses")
	{
		expenses.POST("", h.SubmitExpense)
		expenses.GET("", h.ListExpenses)
		expenses.POST("/drafts", h.SaveDraft)
		expenses.GET("/:id", h.GetExpense)
		expenses.POST("/:id/submit", h.SubmitDraft)
		expenses.GET("/:id/history", h.GetHistory)
		expenses.POST("/:id/approvals/:level", h.Decide)
	}

	api.GET("/approvals/pending", h.PendingApprovals)

	users := api.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.POST("/:id/deactivate", h.DeactivateUser)
	}

	reports := api.Group("/reports")
	{
		reports.GET("/summary", h.Summary)
		reports.GET("/categories", h.CategoryBreakdown)
		reports.GET("/departments", h.DepartmentBreakdown)
		reports.GET("/approvers/:id", h.ApproverStats)
		reports.GET("/monthly", h.MonthlyTrend)
		reports.GET("/export", h.ExportReport)
		reports.POST("/archive", h.ArchiveReport)
	}
}

func (s *Server) recoveryHandler(c *gin.Context, recovered interface{}) {
	s.logger.Error("Panic recovered", "panic", recovered, "path", c.Request.URL.Path)
	c.AbortWithStatusJSON(http.StatusInternalServerError, Response{
		Success: false,
		Error:   "internal server error",
		Code:    CodeInternal,
	})
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.config.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return s.config.Addr
}
