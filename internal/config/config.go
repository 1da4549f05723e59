// Package config provides configuration management for opspulse-analytics.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading (for some settings)
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (OPSPULSE_* prefix)
//  2. YAML config files (default: /etc/opspulse/analytics.yaml)
//  3. Built-in defaults (lowest priority)
package config

import "context"

// Config struct contains all configuration fields
type Config struct {
	// Server configuration (health + Prometheus metrics endpoint)
	Server struct {
		Port int
	}

	// Database configuration
	Database struct {
		Type       string // "sqlite" | "memory"
		SQLitePath string
	}

	// Analytics configuration
	Analytics struct {
		IntervalMinutes int      // scheduled pipeline run interval
		MetricTypes     []string // metric names covered by detection and reports
		RetentionDays   int
	}

	// Report configuration
	Report struct {
		PeriodHours int
	}

	// Logging configuration
	Logging struct {
		Level      string // "debug" | "info" | "warn" | "error"
		Format     string // "json" | "text"
		File       string // empty = stdout only
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads (if supported).
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources (selective settings).
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with default config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/opspulse/analytics.yaml")
}
