package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables, applies the
// default tag for unset ones and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := fromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	listType     = reflect.TypeOf([]string(nil))
)

// parse converts an env value into a value of type t.
func parse(t reflect.Type, raw string) (any, error) {
	switch {
	case t == durationType:
		return time.ParseDuration(raw)
	case t == listType:
		return splitList(raw), nil
	}
	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Int:
		return strconv.Atoi(raw)
	case reflect.Bool:
		return strconv.ParseBool(raw)
	}
	return nil, fmt.Errorf("unsupported field type %s", t)
}

// fromEnv fills the env-tagged fields of the struct v, descending into
// nested section structs.
func fromEnv(v reflect.Value) error {
	t := v.Type()
	for i := range t.NumField() {
		f, fv := t.Field(i), v.Field(i)
		if f.Type.Kind() == reflect.Struct {
			if err := fromEnv(fv); err != nil {
				return err
			}
			continue
		}

		name := f.Tag.Get("env")
		if name == "" {
			continue
		}
		raw := lookupEnv(name, f.Tag.Get("envAlt"), f.Tag.Get("default"))
		if raw == "" {
			continue
		}

		val, err := parse(f.Type, raw)
		if err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
		fv.Set(reflect.ValueOf(val))
	}
	return nil
}

// lookupEnv returns the first non-empty of name, alt and def.
func lookupEnv(name, alt, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v
		}
	}
	return def
}

// splitList splits a comma-separated value, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Store validation
	switch strings.ToLower(c.Store.Driver) {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when STORE_DRIVER is postgres")
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	case DriverMemory:
		if c.Store.FixturesPath == "" {
			errs = append(errs, "FIXTURES_PATH is required when STORE_DRIVER is memory")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: postgres, sqlite, memory", c.Store.Driver))
	}

	// Database validation
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Flatten validation
	if c.Flatten.BatchSize <= 0 {
		errs = append(errs, "FLATTEN_BATCH_SIZE must be positive")
	}
	if c.Flatten.MaxConcurrent <= 0 {
		errs = append(errs, "FLATTEN_MAX_CONCURRENT must be positive")
	}
	if c.Flatten.MaxWaitTime <= 0 {
		errs = append(errs, "FLATTEN_MAX_WAIT_TIME must be positive")
	}
	if c.Flatten.Timeout <= 0 {
		errs = append(errs, "FLATTEN_TIMEOUT must be positive")
	}
	if c.Flatten.ResetTimeout <= 0 {
		errs = append(errs, "FLATTEN_RESET_TIMEOUT must be positive")
	}
	if c.Flatten.ScheduleInterval < 0 {
		errs = append(errs, "FLATTEN_SCHEDULE_INTERVAL must not be negative")
	}

	// Rate limit validation
	if c.Rate.Enabled {
		if c.Rate.RequestsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive")
		}
		if c.Rate.RunLimit <= 0 {
			errs = append(errs, "RATE_LIMIT_RUN must be positive")
		}
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "SECURITY_API_KEYS is required when SECURITY_REQUIRE_API_KEY is true")
	}

	// Metrics validation
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "notice": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, notice, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Sensitive values like database URLs are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Store: {Driver: %q, SQLitePath: %q, FixturesPath: %q}, ",
		c.Store.Driver, c.Store.SQLitePath, c.Store.FixturesPath))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Flatten: {RootType: %q, BatchSize: %d, MaxConcurrent: %d}, ",
		c.Flatten.RootType, c.Flatten.BatchSize, c.Flatten.MaxConcurrent))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
