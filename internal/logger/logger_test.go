package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/config"
)

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "console.log")
	l, err := New(config.LoggerConfig{Output: "file", FilePath: path, Level: "debug"})
	require.NoError(t, err)

	l.Named("transport").Debug("dialing", zap.String("url", "ws://x"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "dialing", line["msg"])
	assert.Equal(t, "transport", line["logger"])
	assert.Equal(t, "debug", line["level"])
}

func TestLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.log")
	l, err := New(config.LoggerConfig{Output: "file", FilePath: path, Level: "warn", Format: "console"})
	require.NoError(t, err)

	l.Info("hidden")
	l.Warn("shown")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestDefaults(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/state")
	cfg := withDefaults(config.LoggerConfig{})
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "stdout", cfg.Output)
	assert.Equal(t, filepath.Join("/state", "interceptor-console", "console.log"), cfg.FilePath)
}
