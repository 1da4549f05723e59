package config

import "github.com/opspulse/opspulse-analytics/internal/models"

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Server defaults
	cfg.Server.Port = 9090

	// Database defaults
	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/opspulse/analytics.db"

	// Analytics defaults
	cfg.Analytics.IntervalMinutes = 5
	cfg.Analytics.MetricTypes = []string{
		models.MetricResponseTime,
		models.MetricCPUUsage,
		models.MetricMemoryUsage,
		models.MetricErrorCount,
		models.MetricRequestCount,
	}
	cfg.Analytics.RetentionDays = 30

	// Report defaults
	cfg.Report.PeriodHours = 24

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.File = ""
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28

	return cfg
}
