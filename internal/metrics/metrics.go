package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analytics service metrics for production monitoring
var (
	// Anomaly detection metrics
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_anomalies_detected_total",
			Help: "Total number of anomalies detected",
		},
		[]string{"metric", "severity"},
	)

	AnomaliesResolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opspulse_anomalies_resolved_total",
			Help: "Total number of anomalies marked resolved",
		},
	)

	DetectionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_detection_runs_total",
			Help: "Total number of anomaly detection runs",
		},
		[]string{"metric", "outcome"}, // outcome: anomaly/clean/skipped
	)

	// KPI metrics
	KpiCalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_kpi_calculations_total",
			Help: "Total number of KPI calculations",
		},
		[]string{"kpi", "status"},
	)

	// Trend analysis metrics
	TrendAnalyses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_trend_analyses_total",
			Help: "Total number of trend analyses performed",
		},
		[]string{"metric", "direction"},
	)

	ForecastsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opspulse_forecasts_generated_total",
			Help: "Total number of forecasts generated",
		},
	)

	// Report metrics
	ReportsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opspulse_reports_generated_total",
			Help: "Total number of analytics reports generated",
		},
	)

	ReportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opspulse_report_duration_seconds",
			Help:    "Report generation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
	)

	// Pipeline metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_pipeline_runs_total",
			Help: "Total number of analytics pipeline runs",
		},
		[]string{"status"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opspulse_pipeline_duration_seconds",
			Help:    "Analytics pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
	)

	// Store metrics
	MetricsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opspulse_metrics_ingested_total",
			Help: "Total number of metric points ingested",
		},
		[]string{"metric", "source"},
	)
)
