// Package report assembles the periodic analytics report: per-metric health
// and trends, KPI results, classified anomalies, findings, and
// recommendations.
package report

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/analytics/stats"
	"github.com/opspulse/opspulse-analytics/internal/analytics/trend"
	"github.com/opspulse/opspulse-analytics/internal/metrics"
	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

// maxClassifiedAnomalies caps the classification work per report.
const maxClassifiedAnomalies = 20

// Health grades a metric's average level against fixed thresholds.
type Health string

const (
	HealthHealthy  Health = "Healthy"
	HealthWarning  Health = "Warning"
	HealthCritical Health = "Critical"
)

// MetricSection is the per-metric slice of a report.
type MetricSection struct {
	MetricName       string               `json:"metric_name"`
	Health           Health               `json:"health"`
	Mean             float64              `json:"mean"`
	StdDev           float64              `json:"std_dev"`
	Stability        string               `json:"stability"`
	Direction        trend.TrendDirection `json:"direction"`
	ChangePercentage float64              `json:"change_percentage"`
	IsSustained      bool                 `json:"is_sustained"`
	HasSeasonality   bool                 `json:"has_seasonality"`
	PeakHours        []int                `json:"peak_hours,omitempty"`
}

// AnomalyAssessment pairs an anomaly with its classification.
type AnomalyAssessment struct {
	Anomaly        *models.AnomalyRecord `json:"anomaly"`
	Classification *trend.Classification `json:"classification,omitempty"`
}

// Report is a full analytics report over one period.
type Report struct {
	ID              string              `json:"id"`
	GeneratedAt     time.Time           `json:"generated_at"`
	PeriodStart     time.Time           `json:"period_start"`
	PeriodEnd       time.Time           `json:"period_end"`
	Metrics         []MetricSection     `json:"metrics"`
	Kpis            []*models.KpiRecord `json:"kpis"`
	Anomalies       []AnomalyAssessment `json:"anomalies"`
	OneOffCount     int                 `json:"one_off_count"`
	SustainedCount  int                 `json:"sustained_count"`
	Findings        []string            `json:"findings"`
	Recommendations []string            `json:"recommendations"`
}

// defaultMetricNames are the metric types a report covers unless overridden.
func defaultMetricNames() []string {
	return []string{
		models.MetricResponseTime,
		models.MetricCPUUsage,
		models.MetricMemoryUsage,
		models.MetricErrorCount,
		models.MetricRequestCount,
	}
}

// Aggregator builds reports from the store and trend analyzer.
type Aggregator struct {
	store       store.Store
	analyzer    *trend.Analyzer
	log         *zap.Logger
	metricNames []string
	now         func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMetricNames replaces the default metric list a report covers.
func WithMetricNames(names []string) Option {
	return func(a *Aggregator) { a.metricNames = names }
}

// WithNow overrides the aggregator clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates a report Aggregator.
func NewAggregator(s store.Store, analyzer *trend.Analyzer, log *zap.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		store:       s,
		analyzer:    analyzer,
		log:         log,
		metricNames: defaultMetricNames(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate builds a report covering the trailing period. Metrics that lack
// data are omitted from the report rather than failing it.
func (a *Aggregator) Generate(ctx context.Context, period time.Duration) (*Report, error) {
	started := time.Now()
	now := a.now().UTC()
	periodStart := now.Add(-period)

	r := &Report{
		ID:          uuid.NewString(),
		GeneratedAt: now,
		PeriodStart: periodStart,
		PeriodEnd:   now,
	}

	for _, name := range a.metricNames {
		section, findings, recs, err := a.analyzeMetric(ctx, name, period)
		if err != nil {
			a.log.Warn("skipping metric in report",
				zap.String("metric", name),
				zap.Error(err))
			continue
		}
		r.Metrics = append(r.Metrics, *section)
		r.Findings = append(r.Findings, findings...)
		r.Recommendations = append(r.Recommendations, recs...)
	}

	kpis, err := a.store.ListKpisByDateRange(ctx, periodStart, now)
	if err != nil {
		return nil, fmt.Errorf("list kpis: %w", err)
	}
	r.Kpis = kpis

	if err := a.assessAnomalies(ctx, r); err != nil {
		return nil, err
	}

	metrics.ReportsGenerated.Inc()
	metrics.ReportDuration.Observe(time.Since(started).Seconds())
	a.log.Info("report generated",
		zap.String("report_id", r.ID),
		zap.Int("metrics", len(r.Metrics)),
		zap.Int("anomalies", len(r.Anomalies)),
		zap.Int("findings", len(r.Findings)))
	return r, nil
}

func (a *Aggregator) analyzeMetric(ctx context.Context, name string, period time.Duration) (*MetricSection, []string, []string, error) {
	ta, err := a.analyzer.AnalyzeTrend(ctx, name, period)
	if err != nil {
		return nil, nil, nil, err
	}
	va, err := a.analyzer.AnalyzeVariance(ctx, name, period)
	if err != nil {
		return nil, nil, nil, err
	}

	// Change over the period, relative to the average level.
	var changePct float64
	if va.Mean != 0 {
		changePct = stats.Round(ta.SlopePerHour*period.Hours()/va.Mean*100, 2)
	}

	health, healthDesc := healthFor(name, va.Mean)

	section := &MetricSection{
		MetricName:       name,
		Health:           health,
		Mean:             va.Mean,
		StdDev:           va.StdDev,
		Stability:        va.Stability,
		Direction:        ta.Direction,
		ChangePercentage: changePct,
		IsSustained:      ta.IsSustained,
	}

	var findings, recs []string
	if ta.IsSustained && math.Abs(changePct) > 10 {
		findings = append(findings, fmt.Sprintf("%s: %s trend of %.1f%% detected",
			name, ta.Direction, math.Abs(changePct)))
	}

	// Seasonality runs on a fixed weekly window and needs more data; its
	// absence is not a reason to drop the section.
	if sa, err := a.analyzer.AnalyzeSeasonality(ctx, name); err == nil && sa.HasSeasonality {
		section.HasSeasonality = true
		section.PeakHours = sa.PeakHours
		findings = append(findings, fmt.Sprintf("%s: Seasonality detected with %d peak periods",
			name, len(sa.PeakHours)))
	}

	switch {
	case health == HealthCritical:
		recs = append(recs, fmt.Sprintf("URGENT: %s requires immediate attention - %s", name, healthDesc))
	case health == HealthWarning && ta.Direction == trend.DirectionUpward:
		recs = append(recs, fmt.Sprintf("Monitor %s closely - trending upward and may become critical", name))
	}

	return section, findings, recs, nil
}

func (a *Aggregator) assessAnomalies(ctx context.Context, r *Report) error {
	anomalies, err := a.store.ListAnomaliesByDateRange(ctx, r.PeriodStart, r.PeriodEnd)
	if err != nil {
		return fmt.Errorf("list anomalies: %w", err)
	}

	for _, rec := range anomalies {
		assessment := AnomalyAssessment{Anomaly: rec}
		if len(r.Anomalies) < maxClassifiedAnomalies {
			c, err := a.analyzer.ClassifyAnomaly(ctx, rec)
			if err != nil {
				a.log.Warn("anomaly classification failed",
					zap.Int64("anomaly_id", rec.ID),
					zap.Error(err))
			} else {
				assessment.Classification = c
				switch c.Type {
				case trend.OneOffSpike:
					r.OneOffCount++
				case trend.SustainedIssue:
					r.SustainedCount++
				}
			}
		}
		r.Anomalies = append(r.Anomalies, assessment)
	}
	return nil
}

// healthFor grades the period average of a metric against its thresholds.
// Unknown metrics are always Healthy.
func healthFor(name string, mean float64) (Health, string) {
	type threshold struct {
		critical float64
		warning  float64
	}
	thresholds := map[string]threshold{
		models.MetricResponseTime: {critical: 300, warning: 200},
		models.MetricCPUUsage:     {critical: 85, warning: 70},
		models.MetricMemoryUsage:  {critical: 90, warning: 75},
		models.MetricErrorCount:   {critical: 100, warning: 50},
	}
	th, ok := thresholds[name]
	if !ok {
		return HealthHealthy, ""
	}
	switch {
	case mean > th.critical:
		return HealthCritical, fmt.Sprintf("average %.2f exceeds the critical threshold of %.0f", mean, th.critical)
	case mean > th.warning:
		return HealthWarning, fmt.Sprintf("average %.2f exceeds the warning threshold of %.0f", mean, th.warning)
	default:
		return HealthHealthy, ""
	}
}
