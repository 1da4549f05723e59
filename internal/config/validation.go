package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate server configuration
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Server.Port),
		})
	}

	// Validate database configuration
	validDatabaseTypes := map[string]bool{
		"sqlite": true,
		"memory": true,
	}
	if !validDatabaseTypes[c.Database.Type] {
		errs = append(errs, &ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("invalid database type '%s', must be one of: sqlite, memory", c.Database.Type),
		})
	}
	if c.Database.Type == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required when database type is sqlite",
		})
	}

	// Validate analytics configuration
	if c.Analytics.IntervalMinutes < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.interval_minutes",
			Message: fmt.Sprintf("interval must be at least 1 minute, got %d", c.Analytics.IntervalMinutes),
		})
	}
	if len(c.Analytics.MetricTypes) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.metric_types",
			Message: "at least one metric type is required",
		})
	}
	if c.Analytics.RetentionDays < 1 {
		errs = append(errs, &ValidationError{
			Field:   "analytics.retention_days",
			Message: fmt.Sprintf("retention days must be at least 1, got %d", c.Analytics.RetentionDays),
		})
	}

	// Validate report configuration
	if c.Report.PeriodHours < 1 || c.Report.PeriodHours > 168 {
		errs = append(errs, &ValidationError{
			Field:   "report.period_hours",
			Message: fmt.Sprintf("period must be between 1 and 168 hours, got %d", c.Report.PeriodHours),
		})
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format '%s', must be one of: json, text", c.Logging.Format),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errs = append(errs, &ValidationError{
			Field:   "logging.max_size_mb",
			Message: fmt.Sprintf("max_size_mb cannot be negative, got %d", c.Logging.MaxSizeMB),
		})
	}

	return errs
}
