// Package config loads application configuration from defaults, an optional
// YAML file and STATUSPAGE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
// Nested keys are separated by a double underscore, e.g. STATUSPAGE_DATABASE__URL.
const EnvPrefix = "STATUSPAGE_"

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Storage  StorageConfig  `koanf:"storage"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Monitor  MonitorConfig  `koanf:"monitor"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL               string        `koanf:"url"`
	MaxOpenConns      int           `koanf:"max_open_conns"`
	MaxIdleConns      int           `koanf:"max_idle_conns"`
	ConnMaxLifetime   time.Duration `koanf:"conn_max_lifetime"`
	HealthCheckPeriod time.Duration `koanf:"health_check_period"`
	ConnectTimeout    time.Duration `koanf:"connect_timeout"`
	ConnectAttempts   int           `koanf:"connect_attempts"`
	Migrate           bool          `koanf:"migrate"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	Driver string `koanf:"driver"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// MonitorConfig holds scheduler settings and the monitoring defaults applied
// to services registered without explicit values.
type MonitorConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Interval    time.Duration `koanf:"interval"`
	Concurrency int           `koanf:"concurrency"`
	// ProbeRate limits probe starts per second across all services. Zero disables the limit.
	ProbeRate  float64 `koanf:"probe_rate"`
	ProbeBurst int     `koanf:"probe_burst"`
	UserAgent  string  `koanf:"user_agent"`
	RunOnStart bool    `koanf:"run_on_start"`

	Defaults MonitorDefaults `koanf:"defaults"`
}

// MonitorDefaults are per-service monitoring defaults.
type MonitorDefaults struct {
	Timeout        time.Duration `koanf:"timeout"`
	Interval       time.Duration `koanf:"interval"`
	ExpectedStatus int           `koanf:"expected_status"`
	RetryAttempts  int           `koanf:"retry_attempts"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "3001",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   5 * time.Minute,
			HealthCheckPeriod: time.Minute,
			ConnectTimeout:    90 * time.Second,
			ConnectAttempts:   5,
			Migrate:           true,
		},
		Storage: StorageConfig{
			Driver: StorageDriverPostgres,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			Interval:    60 * time.Second,
			Concurrency: 10,
			ProbeRate:   0,
			ProbeBurst:  1,
			UserAgent:   "uptime-garden-monitor",
			RunOnStart:  true,
			Defaults: MonitorDefaults{
				Timeout:        5 * time.Second,
				Interval:       60 * time.Second,
				ExpectedStatus: 200,
				RetryAttempts:  0,
			},
		},
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps STATUSPAGE_MONITOR__PROBE_RATE to monitor.probe_rate.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres storage"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.Concurrency <= 0 {
		errs = append(errs, errors.New("monitor.concurrency must be positive"))
	}
	if c.Monitor.ProbeRate < 0 {
		errs = append(errs, errors.New("monitor.probe_rate must not be negative"))
	}
	if c.Monitor.Defaults.Timeout <= 0 {
		errs = append(errs, errors.New("monitor.defaults.timeout must be positive"))
	}
	if c.Monitor.Defaults.RetryAttempts < 0 {
		errs = append(errs, errors.New("monitor.defaults.retry_attempts must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
