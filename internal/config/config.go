package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/expense-router/internal/domain/entity"
	"github.com/garyjia/expense-router/internal/domain/routing"
)

// EnvPrefix prefixes every environment override, e.g. EXPENSE_ROUTER_SERVER_PORT
const EnvPrefix = "EXPENSE_ROUTER"

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Report   ReportConfig   `mapstructure:"report"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database configuration. Driver "memory" keeps everything in process.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	SeedDemo        bool          `mapstructure:"seed_demo"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// RoutingConfig holds the approval rule set and routing policy
type RoutingConfig struct {
	Rules          []entity.ApprovalRule `mapstructure:"rules"`
	RulesFile      string                `mapstructure:"rules_file"`
	FlagThreshold  float64               `mapstructure:"flag_threshold"`
	FallbackRuleID string                `mapstructure:"fallback_rule_id"`
}

// CurrencyConfig holds the reporting currency and static conversion rates
type CurrencyConfig struct {
	Reporting string             `mapstructure:"reporting"`
	Rates     map[string]float64 `mapstructure:"rates"`
}

// ReportConfig holds report export configuration. A zero ArchiveInterval disables the
// background archive worker.
type ReportConfig struct {
	OutputDir       string        `mapstructure:"output_dir"`
	CompanyName     string        `mapstructure:"company_name"`
	ArchiveInterval time.Duration `mapstructure:"archive_interval"`
	Retain          int           `mapstructure:"retain"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	OutputPath  string  `mapstructure:"output_path"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from an optional YAML file and environment variables.
// An empty configPath uses defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Routing.RulesFile != "" {
		rules, err := LoadRulesFile(cfg.Routing.RulesFile)
		if err != nil {
			return nil, err
		}
		cfg.Routing.Rules = rules
	}
	if len(cfg.Routing.Rules) == 0 {
		cfg.Routing.Rules = routing.DefaultRules()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file or environment is present
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 50.0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/expenses.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.seed_demo", false)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("routing.rules_file", "")
	v.SetDefault("routing.flag_threshold", routing.DefaultFlagThreshold)
	v.SetDefault("routing.fallback_rule_id", "")

	v.SetDefault("currency.reporting", "USD")
	v.SetDefault("currency.rates", map[string]float64{})

	v.SetDefault("report.output_dir", "reports")
	v.SetDefault("report.company_name", "Monex")
	v.SetDefault("report.archive_interval", 0)
	v.SetDefault("report.retain", 30)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "expense_router")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "expense-router")
	v.SetDefault("tracing.output_path", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// bindEnvVars binds the short aliases operators tend to use
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", EnvPrefix+"_DATABASE_PATH", "EXPENSE_DB_PATH")
	_ = v.BindEnv("logger.level", EnvPrefix+"_LOGGER_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_limit and server.rate_burst must not be negative")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level must be debug, info, warn or error, got %q", c.Logger.Level)
	}

	if err := routing.ValidateRules(c.Routing.Rules); err != nil {
		return fmt.Errorf("routing.rules: %w", err)
	}
	if c.Routing.FlagThreshold < 0 {
		return fmt.Errorf("routing.flag_threshold must not be negative")
	}
	if c.Routing.FallbackRuleID != "" && !hasRule(c.Routing.Rules, c.Routing.FallbackRuleID) {
		return fmt.Errorf("routing.fallback_rule_id %q does not name a configured rule", c.Routing.FallbackRuleID)
	}

	if len(strings.TrimSpace(c.Currency.Reporting)) != 3 {
		return fmt.Errorf("currency.reporting must be a 3-letter code, got %q", c.Currency.Reporting)
	}

	if c.Report.ArchiveInterval < 0 || c.Report.Retain < 0 {
		return fmt.Errorf("report.archive_interval and report.retain must not be negative")
	}
	if c.Report.ArchiveInterval > 0 && c.Report.OutputDir == "" {
		return fmt.Errorf("report.output_dir is required when archiving is enabled")
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}

	return nil
}

// Addr returns the listen address of the HTTP server
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func hasRule(rules []entity.ApprovalRule, id string) bool {
	for _, r := range rules {
		if r.ID == id {
			return true
		}
	}
	return false
}
