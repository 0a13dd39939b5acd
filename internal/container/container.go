package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/dispatcher"
	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/application/service"
	"github.com/garyjia/expense-router/internal/config"
	"github.com/garyjia/expense-router/internal/domain/event"
	"github.com/garyjia/expense-router/internal/domain/routing"
	"github.com/garyjia/expense-router/internal/infrastructure/metrics"
	"github.com/garyjia/expense-router/internal/infrastructure/storage"
	"github.com/garyjia/expense-router/internal/infrastructure/tracing"
	"github.com/garyjia/expense-router/internal/infrastructure/worker"
	httpapi "github.com/garyjia/expense-router/internal/interfaces/http"
	"github.com/garyjia/expense-router/pkg/database"
)

const componentOK = "ok"

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	tracing *tracing.Provider
	db      *database.DB
	repos   port.Repositories
	files   *storage.LocalFileStorage
	metrics *metrics.Metrics

	// Application
	router     *routing.Router
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Interfaces
	workers *worker.Manager
	server  *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins background processing.
// Components are initialized in dependency order:
// 1. Tracing
// 2. Database and repositories, plus the demo seed when configured
// 3. Currency converter and approval router
// 4. Event dispatcher and metrics
// 5. Storage and application services
// 6. Workers
// 7. HTTP server (not yet listening, see Serve)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization", zap.String("version", Version))

	// Step 1: Tracing goes first so every later component picks up the global provider
	provider, err := tracing.Init(tracingConfig(c.config))
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.tracing = provider

	// Step 2: Database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized", zap.String("driver", c.config.Database.Driver))

	// Step 3: Domain
	converter, err := ProvideConverter(&c.config.Currency)
	if err != nil {
		return err
	}
	if c.router, err = ProvideRouter(&c.config.Routing); err != nil {
		return err
	}
	c.logger.Info("Approval router initialized", zap.Int("rules", len(c.router.Rules())))

	// Step 4: Dispatcher and metrics
	c.dispatcher = ProvideDispatcher(c.logger)
	var metricsHandler http.Handler
	c.metrics, metricsHandler = ProvideMetrics(&c.config.Metrics, c.dispatcher, c.db)

	// Step 5: Storage and services
	c.files = ProvideStorage(&c.config.Report, c.logger)
	deps := &ServiceDeps{
		Config:     c.config,
		Router:     c.router,
		Repos:      c.repos,
		Converter:  converter,
		Dispatcher: c.dispatcher,
		Options:    []service.ExpenseOption{service.WithTracer(c.tracing.Tracer("github.com/garyjia/expense-router/internal/application/service"))},
		Logger:     c.logger,
	}
	if c.files != nil {
		deps.Storage = c.files
	}
	if c.services, err = ProvideServices(deps); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 6: Workers
	c.workers = ProvideWorkers(c.config, c.services.Reports, c.files, c.logger)
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	// Step 7: HTTP server
	c.server = ProvideServer(c.config, c.services, c, c.metrics, metricsHandler, c.logger)

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Serve runs the HTTP server until ctx is cancelled.
func (c *Container) Serve(ctx context.Context) error {
	if !c.ready.Load() {
		return fmt.Errorf("container not started")
	}
	return c.server.Start(ctx)
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 6)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Close dispatcher, waiting for async handlers (reverse of step 4)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 3: Close database (reverse of step 2)
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	// Step 4: Flush spans (reverse of step 1)
	if c.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.tracing.Shutdown(ctx); err != nil {
			c.logger.Error("Failed to shut down tracing", zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		cancel()
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports the status of each component; "ok" means healthy.
func (c *Container) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"database":   componentOK,
		"dispatcher": componentOK,
		"workers":    componentOK,
	}

	if c.closed.Load() {
		for name := range status {
			status[name] = "closed"
		}
		return status
	}

	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			status["database"] = fmt.Sprintf("ping failed: %v", err)
		}
	} else if c.repos.Tx == nil {
		status["database"] = "not initialized"
	}

	if c.dispatcher == nil {
		status["dispatcher"] = "not initialized"
	}

	if c.workers == nil {
		status["workers"] = "not initialized"
	} else if c.workers.Count() > 0 && !c.workers.IsRunning() {
		status["workers"] = "stopped"
	}

	return status
}

// initDatabase opens the store and seeds the demo organisation when configured.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, DatabaseConfig(c.config), c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.repos = bundle.Repositories

	if c.config.Database.SeedDemo {
		if _, err := SeedDemo(c.ctx, c.repos, c.logger); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	return nil
}

// Getters for accessing container components

// Repositories returns all repositories.
func (c *Container) Repositories() port.Repositories {
	return c.repos
}

// Router returns the approval router.
func (c *Container) Router() *routing.Router {
	return c.router
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Server returns the HTTP server.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// auditLogHandler writes one line per completed expense
func auditLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(_ context.Context, evt *event.Event) error {
		logger.Info("Expense completed",
			zap.String("expense_id", evt.ExpenseID),
			zap.String("status", string(evt.Type)),
			zap.String("actor_id", evt.ActorID),
			zap.Float64("converted_amount", evt.GetPayloadFloat(event.KeyAmount)),
		)
		return nil
	}
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces of the
// service, dispatcher and HTTP layers.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
