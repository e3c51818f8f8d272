package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, validateConfig(GetDefaults()))
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  max_content_length: 5000
engine:
  legacy_pattern_offsets: true
logging:
  level: debug
  format: console
store:
  driver: postgres
  dsn: postgres://sentinel@localhost/sentinel?sslmode=disable
cache:
  enabled: true
  default_ttl: 2h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5000, cfg.Server.MaxContentLength)
	assert.True(t, cfg.Engine.LegacyPatternOffsets)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 2*time.Hour, cfg.Cache.DefaultTTL)

	// untouched sections keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "@every 1m", cfg.Scheduler.StatusSchedule)
	assert.True(t, cfg.WebSocket.Events.BroadcastChecks)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	t.Setenv("SENTINEL_SERVER_PORT", "7070")
	t.Setenv("SENTINEL_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "server:\n  port: 70000\n"},
		{"log level", "logging:\n  level: chatty\n"},
		{"log format", "logging:\n  format: xml\n"},
		{"store driver", "store:\n  driver: mysql\n"},
		{"workers", "batch:\n  worker_count: 0\n"},
		{"retention", "scheduler:\n  retention_period: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchLoadedFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")
	_, err := Load(path)
	require.NoError(t, err)

	assert.NoError(t, Watch(func(*Config) {}, nil))
}
