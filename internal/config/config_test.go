package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("BUILDGUARD_CONFIG", path)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BUILDGUARD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/v1", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	writeConfigFile(t, "api_url: https://buildguard.example.com/api/v1\nlog_level: debug\ntimeout: 5s\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://buildguard.example.com/api/v1", cfg.APIURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
}

func TestLoad_EnvWinsOverFile(t *testing.T) {
	writeConfigFile(t, "api_url: https://from-file.example.com\n")
	t.Setenv("BUILDGUARD_API_URL", "https://from-env.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://from-env.example.com", cfg.APIURL)
}

func TestLoad_MalformedFile(t *testing.T) {
	writeConfigFile(t, "api_url: [broken\n")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config file")
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Config{LogLevelStr: tt.in}.LogLevel(), tt.in)
	}
}
