// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Flatten  FlattenConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required with the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects where entities are read from and rows are written to.
type StoreConfig struct {
	// Driver is postgres, sqlite or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// SQLitePath is the database file for the sqlite driver (default: simplestruct.db)
	SQLitePath string `env:"SQLITE_PATH" default:"simplestruct.db"`

	// FixturesPath is a YAML file or directory of entities. Required with the
	// memory driver; optional seed data otherwise.
	FixturesPath string `env:"FIXTURES_PATH"`
}

// FlattenConfig holds report run settings.
type FlattenConfig struct {
	// RootType overrides the root content type of every report (default: evento)
	RootType string `env:"FLATTEN_ROOT_TYPE" default:"evento"`

	// BatchSize is the number of rows buffered per bulk insert (default: 500)
	BatchSize int `env:"FLATTEN_BATCH_SIZE" default:"500"`

	// Timeout is the maximum duration of a single run (default: 30m)
	Timeout time.Duration `env:"FLATTEN_TIMEOUT" default:"30m"`

	// ResetTimeout is the maximum duration of a truncate (default: 30s)
	ResetTimeout time.Duration `env:"FLATTEN_RESET_TIMEOUT" default:"30s"`

	// MaxConcurrent is the maximum number of parallel runs (default: 1)
	MaxConcurrent int `env:"FLATTEN_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long to wait for a run slot (default: 5s)
	MaxWaitTime time.Duration `env:"FLATTEN_MAX_WAIT_TIME" default:"5s"`

	// ScheduleInterval rebuilds every report periodically; zero disables it (default: 0s)
	ScheduleInterval time.Duration `env:"FLATTEN_SCHEDULE_INTERVAL" default:"0s"`

	// RunOnStart rebuilds every report once when the scheduler starts (default: false)
	RunOnStart bool `env:"FLATTEN_RUN_ON_START" default:"false"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RunLimit is requests per minute for run and reset endpoints (default: 10)
	RunLimit int `env:"RATE_LIMIT_RUN" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects the run and reset endpoints with X-API-Key (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"SECURITY_API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, notice, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	// Enabled serves metrics over HTTP (default: true)
	Enabled bool `env:"METRICS_ENABLED" default:"true"`

	// Path is the metrics route (default: /metrics)
	Path string `env:"METRICS_PATH" default:"/metrics"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
