package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STATUSPAGE_STORAGE__DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, StorageDriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Defaults.Timeout)
	assert.Equal(t, 200, cfg.Monitor.Defaults.ExpectedStatus)
	assert.Equal(t, 0, cfg.Monitor.Defaults.RetryAttempts)
	assert.Equal(t, time.Minute, cfg.Database.HealthCheckPeriod)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "8080"
database:
  url: postgres://file/db
  connect_attempts: 3
  health_check_period: 30s
monitor:
  interval: 30s
  concurrency: 4
log:
  level: debug
  format: text
`)
	t.Setenv("STATUSPAGE_DATABASE__URL", "postgres://env/db")
	t.Setenv("STATUSPAGE_MONITOR__PROBE_RATE", "2.5")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Database.ConnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Database.HealthCheckPeriod)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 4, cfg.Monitor.Concurrency)
	assert.InDelta(t, 2.5, cfg.Monitor.ProbeRate, 0.0001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout, "unset keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) { c.Database.URL = "postgres://x" }, ""},
		{"postgres without url", func(c *Config) {}, "database.url"},
		{"memory without url", func(c *Config) { c.Storage.Driver = StorageDriverMemory }, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"bad log level", func(c *Config) {
			c.Storage.Driver = StorageDriverMemory
			c.Log.Level = "trace"
		}, "log.level"},
		{"bad log format", func(c *Config) {
			c.Storage.Driver = StorageDriverMemory
			c.Log.Format = "xml"
		}, "log.format"},
		{"zero interval", func(c *Config) {
			c.Storage.Driver = StorageDriverMemory
			c.Monitor.Interval = 0
		}, "monitor.interval"},
		{"negative retries", func(c *Config) {
			c.Storage.Driver = StorageDriverMemory
			c.Monitor.Defaults.RetryAttempts = -1
		}, "retry_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "database.url", envKey("STATUSPAGE_DATABASE__URL"))
	assert.Equal(t, "monitor.defaults.retry_attempts", envKey("STATUSPAGE_MONITOR__DEFAULTS__RETRY_ATTEMPTS"))
}
