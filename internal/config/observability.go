package config

import (
	"time"

	"github.com/deppfellow/dbkit/internal/validation"
)

// ObservabilityConfig groups all configuration related to telemetry and
// runtime visibility: logging, statement instrumentation, New Relic and
// health checks.
type ObservabilityConfig struct {
	// ServiceName identifies this service in logs and APM dashboards.
	// Always overwritten with ServiceName by LoadConfig.
	ServiceName string `koanf:"service_name" validate:"required"`

	// Environment is a label used to split telemetry by environment.
	Environment string `koanf:"environment" validate:"required"`

	Logging         LoggingConfig         `koanf:"logging"`
	Instrumentation InstrumentationConfig `koanf:"instrumentation"`
	NewRelic        NewRelicConfig        `koanf:"new_relic"`
	HealthChecks    HealthChecksConfig    `koanf:"health_checks"`
}

// LoggingConfig holds application logging configuration.
type LoggingConfig struct {
	// Level is the verbosity threshold (debug, info, warn, error).
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`

	// Format is json or console.
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`

	// SlowQueryThreshold marks statements that take longer as slow.
	// Parsed as a duration string ("100ms", "1s").
	SlowQueryThreshold time.Duration `koanf:"slow_query_threshold" validate:"gte=0"`
}

// InstrumentationConfig controls statement timing.
type InstrumentationConfig struct {
	// Enabled turns on the statement recorder.
	Enabled bool `koanf:"enabled"`

	// BufferSize caps the number of spans kept in memory. 0 means
	// unbounded.
	BufferSize int `koanf:"buffer_size" validate:"gte=0"`
}

// NewRelicConfig holds configuration for New Relic APM and tracing.
type NewRelicConfig struct {
	// LicenseKey is the New Relic ingest key. Empty means "not configured".
	LicenseKey string `koanf:"license_key"`

	// AppLogForwardingEnabled forwards application logs to New Relic.
	AppLogForwardingEnabled bool `koanf:"app_log_forwarding_enabled"`

	// DistributedTracingEnabled enables distributed tracing.
	DistributedTracingEnabled bool `koanf:"distributed_tracing_enabled"`

	// DebugLogging enables the agent's own debug output.
	DebugLogging bool `koanf:"debug_logging"`
}

// HealthChecksConfig controls the health command.
type HealthChecksConfig struct {
	Enabled bool `koanf:"enabled"`

	// Timeout is the max time allowed for a check run.
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// Checks lists the checks to run. Only "database" is known.
	Checks []string `koanf:"checks" validate:"dive,oneof=database"`
}

// DefaultObservabilityConfig provides a safe set of defaults.
//
// Used when Config.Observability is nil (not provided via env).
func DefaultObservabilityConfig() *ObservabilityConfig {
	return &ObservabilityConfig{
		ServiceName: ServiceName,
		Environment: "development",

		Logging: LoggingConfig{
			Level:              "info",
			Format:             "json",
			SlowQueryThreshold: 100 * time.Millisecond,
		},

		Instrumentation: InstrumentationConfig{
			Enabled:    false,
			BufferSize: 1000,
		},

		NewRelic: NewRelicConfig{
			LicenseKey:                "",
			AppLogForwardingEnabled:   true,
			DistributedTracingEnabled: true,
			DebugLogging:              false, // Disabled by default to avoid mixed log formats
		},

		HealthChecks: HealthChecksConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
			Checks:  []string{"database"},
		},
	}
}

// Validate checks the struct tags of the observability block.
func (c *ObservabilityConfig) Validate() error {
	return validation.Struct(c, "invalid observability config")
}

// GetLogLevel returns the effective log level to use at runtime.
//
// Production defaults to "info" and development to "debug" when no level
// is set; otherwise the configured level is returned.
func (c *ObservabilityConfig) GetLogLevel() string {
	switch c.Environment {
	case "production":
		if c.Logging.Level == "" {
			return "info"
		}
	case "development":
		if c.Logging.Level == "" {
			return "debug"
		}
	}
	return c.Logging.Level
}

// IsProduction reports whether the application is running in production mode.
func (c *ObservabilityConfig) IsProduction() bool {
	return c.Environment == "production"
}
