// Package container provides dependency injection and lifecycle management
// for the expense routing service following Clean Architecture principles.
package container

import (
	"github.com/garyjia/expense-router/internal/config"
	"github.com/garyjia/expense-router/internal/infrastructure/tracing"
	"github.com/garyjia/expense-router/internal/infrastructure/worker"
	httpapi "github.com/garyjia/expense-router/internal/interfaces/http"
	"github.com/garyjia/expense-router/pkg/database"
)

// Version is reported by the server and attached to traces. Overridden at build time
// with -ldflags "-X github.com/garyjia/expense-router/internal/container.Version=...".
var Version = "1.0.0"

// DriverMemory keeps all state in process; anything else is SQLite
const DriverMemory = "memory"

// DatabaseConfig maps the application config onto the SQLite connection settings
func DatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
}

func tracingConfig(cfg *config.Config) tracing.Config {
	return tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: Version,
		OutputPath:     cfg.Tracing.OutputPath,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}
}

func serverConfig(cfg *config.Config) httpapi.ServerConfig {
	server := httpapi.ServerConfig{
		Addr:         cfg.Server.Addr(),
		Mode:         cfg.Server.Mode,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}
	if cfg.Metrics.Enabled {
		server.MetricsPath = cfg.Metrics.Path
	}
	return server
}

func archiveConfig(cfg *config.Config) worker.ArchiveWorkerConfig {
	return worker.ArchiveWorkerConfig{
		Interval: cfg.Report.ArchiveInterval,
		Retain:   cfg.Report.Retain,
	}
}
