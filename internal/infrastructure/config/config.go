package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all process configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sandbox   SandboxConfig
	Scheduler SchedulerConfig
	Storage   StorageConfig
	Modules   ModulesConfig
	Entries   EntriesConfig
	Tracing   TracingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	// AllowOrigins lists the origins allowed by CORS.
	AllowOrigins    []string      `envconfig:"CORS_ORIGINS" default:"*"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SandboxConfig controls every execution context the runner spawns.
type SandboxConfig struct {
	Timeout          time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"30s"`
	MaxCallStackSize int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024"`
	Restricted       bool          `envconfig:"SANDBOX_RESTRICTED" default:"true"`
	MonotonicClock   bool          `envconfig:"SANDBOX_MONOTONIC_CLOCK" default:"true"`
}

// SchedulerConfig holds sub-match scheduling configuration.
type SchedulerConfig struct {
	// MaxConcurrency of zero selects a value from the CPU count.
	MaxConcurrency int     `envconfig:"MAX_CONCURRENCY" default:"0"`
	ProgressHz     float64 `envconfig:"PROGRESS_HZ" default:"10"`
	RetainedRuns   int     `envconfig:"RETAINED_RUNS" default:"64"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path string `envconfig:"DB_PATH" default:"kothrunner.db"`
}

// ModulesConfig holds game module source configuration.
type ModulesConfig struct {
	Dir      string        `envconfig:"MODULES_DIR" default:"games"`
	URL      string        `envconfig:"MODULES_URL"`
	Allow    []string      `envconfig:"MODULES_ALLOW" default:"**"`
	Timeout  time.Duration `envconfig:"MODULES_TIMEOUT" default:"10s"`
	RetryMax int           `envconfig:"MODULES_RETRY_MAX" default:"3"`
}

// EntriesConfig holds default entry ingestion sources.
type EntriesConfig struct {
	Dir string `envconfig:"ENTRIES_DIR" default:"entries"`
	URL string `envconfig:"ENTRIES_URL"`
	// AllowedHosts are host patterns a request may fetch entries from.
	// ENTRIES_URL is trusted and not checked.
	AllowedHosts []string `envconfig:"ENTRIES_ALLOWED_HOSTS" default:"*.stackexchange.com"`
}

// TracingConfig controls OpenTelemetry export. Tracing is off unless an
// endpoint is set.
type TracingConfig struct {
	Enabled     bool   `envconfig:"OTEL_ENABLED" default:"true"`
	Endpoint    string `envconfig:"OTEL_ENDPOINT"`
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"kothrunner"`
}

// Concurrency returns the effective sub-match concurrency ceiling.
func (c SchedulerConfig) Concurrency() int {
	if c.MaxConcurrency > 0 {
		return c.MaxConcurrency
	}
	return DefaultConcurrency(runtime.NumCPU())
}

// DefaultConcurrency leaves a few cores for the host and caps at 8.
func DefaultConcurrency(cpus int) int {
	n := cpus - 3
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowOrigins:    []string{"*"},
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sandbox: SandboxConfig{
			Timeout:          30 * time.Second,
			MaxCallStackSize: 1024,
			Restricted:       true,
			MonotonicClock:   true,
		},
		Scheduler: SchedulerConfig{
			ProgressHz:   10,
			RetainedRuns: 64,
		},
		Storage: StorageConfig{
			Path: "kothrunner.db",
		},
		Modules: ModulesConfig{
			Dir:      "games",
			Allow:    []string{"**"},
			Timeout:  10 * time.Second,
			RetryMax: 3,
		},
		Entries: EntriesConfig{
			Dir:          "entries",
			AllowedHosts: []string{"*.stackexchange.com"},
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "kothrunner",
		},
	}
}
