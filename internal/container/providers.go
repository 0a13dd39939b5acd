package container

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/garyjia/expense-router/internal/application/dispatcher"
	"github.com/garyjia/expense-router/internal/application/port"
	"github.com/garyjia/expense-router/internal/application/service"
	"github.com/garyjia/expense-router/internal/config"
	"github.com/garyjia/expense-router/internal/domain/event"
	"github.com/garyjia/expense-router/internal/domain/routing"
	"github.com/garyjia/expense-router/internal/infrastructure/currency"
	"github.com/garyjia/expense-router/internal/infrastructure/export"
	"github.com/garyjia/expense-router/internal/infrastructure/metrics"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-router/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-router/internal/infrastructure/storage"
	"github.com/garyjia/expense-router/internal/infrastructure/worker"
	httpapi "github.com/garyjia/expense-router/internal/interfaces/http"
	"github.com/garyjia/expense-router/migrations"
	"github.com/garyjia/expense-router/pkg/database"
)

// DatabaseBundle holds the persistence layer. DB is nil for the memory driver.
type DatabaseBundle struct {
	DB           *database.DB
	Repositories port.Repositories
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Expenses service.ExpenseService
	Reports  service.ReportService
	Users    service.UserService
}

// ProvideDatabase opens the configured store. For SQLite it runs pending migrations
// when auto_migrate is set.
func ProvideDatabase(cfg *config.DatabaseConfig, dbCfg database.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Driver == DriverMemory {
		logger.Info("Using in-memory store")
		return &DatabaseBundle{Repositories: memory.NewStore().Repositories()}, nil
	}

	db, err := database.New(dbCfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		applied, err := database.NewMigrator(db, migrations.FS, logger).Up()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("Migrations applied", zap.Int("count", applied))
	}

	return &DatabaseBundle{
		DB:           db,
		Repositories: ProvideRepositories(db, logger),
	}, nil
}

// ProvideRepositories creates the SQLite repositories sharing one transaction manager.
func ProvideRepositories(db *database.DB, logger *zap.Logger) port.Repositories {
	return port.Repositories{
		Tx:        sqlite.NewTxManager(db.DB, logger),
		Expenses:  repository.NewExpenseRepository(db.DB, logger),
		Approvals: repository.NewApprovalRepository(db.DB, logger),
		Users:     repository.NewUserRepository(db.DB, logger),
		History:   repository.NewHistoryRepository(db.DB, logger),
	}
}

// SeedDemo loads the demo organisation unless users already exist.
func SeedDemo(ctx context.Context, repos port.Repositories, logger *zap.Logger) (bool, error) {
	users, err := repos.Users.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check existing users: %w", err)
	}
	if len(users) > 0 {
		logger.Info("Skipping demo seed, users already exist", zap.Int("users", len(users)))
		return false, nil
	}

	if err := memory.DemoDataset().Load(ctx, repos); err != nil {
		return false, err
	}
	logger.Info("Demo dataset loaded")
	return true, nil
}

// ProvideConverter creates the static currency converter.
func ProvideConverter(cfg *config.CurrencyConfig) (*currency.StaticConverter, error) {
	converter, err := currency.NewStaticConverter(cfg.Reporting, cfg.Rates)
	if err != nil {
		return nil, fmt.Errorf("failed to create currency converter: %w", err)
	}
	return converter, nil
}

// ProvideRouter validates the rule set and creates the approval router.
func ProvideRouter(cfg *config.RoutingConfig) (*routing.Router, error) {
	router, err := routing.NewRouter(cfg.Rules, routing.WithFlagThreshold(cfg.FlagThreshold))
	if err != nil {
		return nil, fmt.Errorf("failed to create approval router: %w", err)
	}
	return router, nil
}

// ProvideDispatcher creates the event dispatcher and logs every completed expense.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}))
	d.SubscribeNamed(event.TypeExpenseApproved, "audit-log", auditLogHandler(logger))
	d.SubscribeNamed(event.TypeExpenseRejected, "audit-log", auditLogHandler(logger))
	return d
}

// ProvideMetrics creates the Prometheus collectors and feeds them from the dispatcher.
// The returned handler refreshes connection pool gauges on every scrape.
func ProvideMetrics(cfg *config.MetricsConfig, d dispatcher.Dispatcher, db *database.DB) (*metrics.Metrics, http.Handler) {
	if !cfg.Enabled {
		return nil, nil
	}

	m := metrics.New(cfg.Namespace)
	m.Subscribe(d)

	scrape := m.Handler()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			m.UpdateDatabaseConnections(db.Stats())
		}
		scrape.ServeHTTP(w, r)
	})
	return m, handler
}

// ProvideStorage creates local file storage for archived reports.
func ProvideStorage(cfg *config.ReportConfig, logger *zap.Logger) *storage.LocalFileStorage {
	if cfg.OutputDir == "" {
		return nil
	}
	return storage.NewLocalFileStorage(cfg.OutputDir, logger)
}

// ServiceDeps holds what the application services are built from.
type ServiceDeps struct {
	Config     *config.Config
	Router     *routing.Router
	Repos      port.Repositories
	Converter  port.CurrencyConverter
	Dispatcher dispatcher.Dispatcher
	Storage    port.FileStorage
	Options    []service.ExpenseOption
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Router == nil || deps.Repos.Tx == nil {
		return nil, fmt.Errorf("router and repositories are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}

	opts := append([]service.ExpenseOption{}, deps.Options...)
	if id := deps.Config.Routing.FallbackRuleID; id != "" {
		opts = append(opts, service.WithFallbackRule(id))
	}

	var publisher service.Publisher
	if deps.Dispatcher != nil {
		publisher = deps.Dispatcher
	}

	writer := export.NewExcelWriter(deps.Config.Report.CompanyName, deps.Logger)

	return &ServiceBundle{
		Expenses: service.NewExpenseService(deps.Router, deps.Repos, deps.Converter, publisher, logger, opts...),
		Reports:  service.NewReportService(deps.Router, deps.Repos, deps.Converter, writer, deps.Storage, logger),
		Users:    service.NewUserService(deps.Repos.Users, logger),
	}, nil
}

// ProvideWorkers registers the background workers enabled by cfg. The manager is empty
// when archiving is disabled.
func ProvideWorkers(cfg *config.Config, reports service.ReportService, files *storage.LocalFileStorage, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger)
	if cfg.Report.ArchiveInterval > 0 && files != nil {
		manager.Register(worker.NewArchiveWorker(archiveConfig(cfg), reports, files, logger))
	}
	return manager
}

// ProvideServer creates the HTTP adapter over the services.
func ProvideServer(cfg *config.Config, services *ServiceBundle, health httpapi.HealthChecker, m *metrics.Metrics, metricsHandler http.Handler, logger *zap.Logger) *httpapi.Server {
	opts := []httpapi.Option{httpapi.WithHealthChecker(health)}
	if m != nil {
		opts = append(opts, httpapi.WithMetrics(m, metricsHandler))
	}

	return httpapi.NewServer(serverConfig(cfg), httpapi.Services{
		Expenses: services.Expenses,
		Reports:  services.Reports,
		Users:    services.Users,
	}, &zapLoggerAdapter{logger: logger}, opts...)
}
