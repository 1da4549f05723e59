// Package models defines the core record types shared across opspulse-analytics.
//
// MetricPoint is supplied by the metric store and is never mutated by the
// analytics kernel. AnomalyRecord and KpiRecord are produced by the kernel
// and persisted through the store interfaces in internal/store.
package models

import "time"

// Well-known metric names emitted by the collectors.
const (
	MetricResponseTime = "ResponseTime"
	MetricCPUUsage     = "CPUUsage"
	MetricMemoryUsage  = "MemoryUsage"
	MetricErrorCount   = "ErrorCount"
	MetricRequestCount = "RequestCount"
	MetricUptime       = "Uptime"
)

// MetricPoint is a single metric observation. Timestamps are UTC.
type MetricPoint struct {
	ID         int64     `json:"id"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// AnomalySeverity grades how far an observation deviates from its baseline.
type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "Low"
	SeverityMedium   AnomalySeverity = "Medium"
	SeverityHigh     AnomalySeverity = "High"
	SeverityCritical AnomalySeverity = "Critical"
)

// AnomalyRecord is a detected statistical outlier for a metric.
// Resolution is a one-way transition: once IsResolved is set, the record is
// never reopened and ResolvedAt is never overwritten.
type AnomalyRecord struct {
	ID            int64           `json:"id"`
	MetricName    string          `json:"metric_name"`
	DetectedValue float64         `json:"detected_value"`
	ExpectedValue float64         `json:"expected_value"`
	Deviation     float64         `json:"deviation"` // percent from expected, 2dp
	Severity      AnomalySeverity `json:"severity"`
	DetectedAt    time.Time       `json:"detected_at"`
	IsResolved    bool            `json:"is_resolved"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty"`
	Description   string          `json:"description"`
}

// KpiStatus compares a calculated KPI against its directional target.
type KpiStatus string

const (
	KpiBelowTarget KpiStatus = "BelowTarget"
	KpiOnTarget    KpiStatus = "OnTarget"
	KpiAboveTarget KpiStatus = "AboveTarget"
	KpiCritical    KpiStatus = "Critical"
)

// KpiRecord is one KPI calculation over a period. Records are append-only:
// a new calculation always produces a new record.
type KpiRecord struct {
	ID              int64      `json:"id"`
	KpiName         string     `json:"kpi_name"`
	CalculatedValue float64    `json:"calculated_value"`
	TargetValue     *float64   `json:"target_value,omitempty"`
	Status          KpiStatus  `json:"status"`
	CalculatedAt    time.Time  `json:"calculated_at"`
	PeriodStart     time.Time  `json:"period_start"`
	PeriodEnd       time.Time  `json:"period_end"`
	Description     string     `json:"description"`
}

// PercentageOfTarget returns the calculated value as a percentage of the
// target. The second return is false when no meaningful percentage exists
// (missing or zero target).
func (k *KpiRecord) PercentageOfTarget() (float64, bool) {
	if k.TargetValue == nil || *k.TargetValue == 0 {
		return 0, false
	}
	return k.CalculatedValue / *k.TargetValue * 100, true
}
