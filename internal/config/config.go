// Package config loads client configuration and sets up logging.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values. Values come from the optional config
// file first, then environment variables; env wins.
type Config struct {
	// Backend API
	APIURL    string        `envconfig:"BUILDGUARD_API_URL" yaml:"api_url"`
	EventsURL string        `envconfig:"BUILDGUARD_EVENTS_URL" yaml:"events_url"`
	Timeout   time.Duration `envconfig:"BUILDGUARD_CLIENT_TIMEOUT" yaml:"timeout"`

	// Logging
	LogFile     string `envconfig:"BUILDGUARD_LOG_FILE" yaml:"log_file"`
	LogLevelStr string `envconfig:"BUILDGUARD_LOG_LEVEL" yaml:"log_level"`
}

// Load reads configuration from the config file (if present) and environment.
func Load() (Config, error) {
	cfg := Config{
		APIURL:      "http://localhost:8080/api/v1",
		Timeout:     30 * time.Second,
		LogFile:     filepath.Join(os.TempDir(), "buildguard.log"),
		LogLevelStr: "INFO",
	}

	if path := configFilePath(); path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("process environment: %w", err)
	}

	return cfg, nil
}

// LogLevel parses the configured level string.
func (c Config) LogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// configFilePath returns the config file location, honoring an explicit
// override via BUILDGUARD_CONFIG.
func configFilePath() string {
	if p := os.Getenv("BUILDGUARD_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "buildguard", "config.yaml")
}
