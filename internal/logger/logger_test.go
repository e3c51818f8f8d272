package logger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		log, err := New(Config{Level: "info", Format: "json"})
		require.NoError(t, err)
		assert.Equal(t, zapcore.InfoLevel, log.Level())
	})

	t.Run("console", func(t *testing.T) {
		log, err := New(Config{Level: "debug", Format: "console"})
		require.NoError(t, err)
		assert.Equal(t, zapcore.DebugLevel, log.Level())
	})

	t.Run("stderr", func(t *testing.T) {
		log, err := New(Config{Level: "warn", Format: "json", Stderr: true})
		require.NoError(t, err)
		assert.Equal(t, zapcore.WarnLevel, log.Level())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Format: "json"})
		assert.Error(t, err)
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sentinel.log")
		log, err := New(Config{Level: "info", Format: "json", File: &FileConfig{Enabled: true, Path: path}})
		require.NoError(t, err)
		log.LogCheck("twitter", false, "High", 3, time.Millisecond)
		assert.FileExists(t, path)
	})
}

func TestSetLevelPropagatesToChildren(t *testing.T) {
	log, err := New(Config{Level: "info", Format: "json"})
	require.NoError(t, err)

	child := log.WithComponent("engine").WithRequestID("abc")
	require.NoError(t, log.SetLevel("error"))

	assert.Equal(t, zapcore.ErrorLevel, child.Level())
	assert.False(t, child.Core().Enabled(zapcore.InfoLevel))
	assert.Error(t, log.SetLevel("verbose"))
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	assert.NotPanics(t, func() {
		log.LogCheck("facebook", true, "Low", 0, time.Microsecond)
		log.WithComponent("x").Info("ignored")
	})
}
