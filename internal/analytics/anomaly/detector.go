// Package anomaly implements z-score anomaly detection over the trailing
// 24-hour metric window, with deduplication against recent unresolved
// anomalies for the same metric.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/analytics/stats"
	"github.com/opspulse/opspulse-analytics/internal/metrics"
	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

const (
	// zThreshold is the minimum z-score for a point to count as anomalous.
	zThreshold = 2.0
	// windowDuration is the trailing baseline window.
	windowDuration = 24 * time.Hour
	// minPoints is the minimum number of observations required for a
	// meaningful baseline.
	minPoints = 10
	// dedupWindow suppresses duplicate detections: an unresolved anomaly
	// for the same metric within this window blocks a new record.
	dedupWindow = 30 * time.Minute
)

// Detector runs anomaly detection and resolution against the store.
type Detector interface {
	// Detect checks the latest observation of metricName against its
	// 24-hour baseline. It returns the persisted anomaly record when the
	// point is anomalous, the existing unresolved record when a recent
	// duplicate suppresses persistence, and nil when the metric is healthy
	// or has too little data.
	Detect(ctx context.Context, metricName string) (*models.AnomalyRecord, error)

	// Resolve marks an anomaly resolved. It returns true when this call
	// performed the transition and false when the record was already
	// resolved or does not exist; an already-resolved record is never
	// modified.
	Resolve(ctx context.Context, id int64) (bool, error)

	// Anomalies returns recent anomalies, newest first.
	Anomalies(ctx context.Context, limit int) ([]*models.AnomalyRecord, error)

	// Unresolved returns unresolved anomalies, newest first, optionally
	// filtered by metric name.
	Unresolved(ctx context.Context, metricName string) ([]*models.AnomalyRecord, error)
}

type detector struct {
	mu    sync.Mutex
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// Option configures a Detector.
type Option func(*detector)

// WithNow overrides the detector clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(d *detector) { d.now = now }
}

// NewDetector creates a Detector backed by the given store.
func NewDetector(s store.Store, log *zap.Logger, opts ...Option) Detector {
	d := &detector{
		store: s,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect holds the detector mutex for the whole check-then-insert sequence
// so that concurrent calls for the same metric cannot both pass the
// deduplication check.
func (d *detector) Detect(ctx context.Context, metricName string) (*models.AnomalyRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now().UTC()
	points, err := d.store.QueryMetrics(ctx, store.MetricQuery{
		MetricName: metricName,
		From:       now.Add(-windowDuration),
		To:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("query metrics for %s: %w", metricName, err)
	}
	if len(points) < minPoints {
		metrics.DetectionRuns.WithLabelValues(metricName, "skipped").Inc()
		d.log.Debug("skipping anomaly detection: insufficient data",
			zap.String("metric", metricName),
			zap.Int("points", len(points)))
		return nil, nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	mean := stats.Mean(values)
	stdDev := stats.StdDev(values, mean)
	if stdDev == 0 {
		// Perfectly constant series: nothing can deviate.
		metrics.DetectionRuns.WithLabelValues(metricName, "clean").Inc()
		return nil, nil
	}

	latest := points[len(points)-1]
	z := math.Abs(latest.Value-mean) / stdDev
	if z <= zThreshold {
		metrics.DetectionRuns.WithLabelValues(metricName, "clean").Inc()
		return nil, nil
	}

	// Deduplicate against recent unresolved anomalies for this metric.
	unresolved, err := d.store.ListUnresolvedAnomalies(ctx, metricName)
	if err != nil {
		return nil, fmt.Errorf("list unresolved anomalies for %s: %w", metricName, err)
	}
	for _, a := range unresolved {
		if now.Sub(a.DetectedAt) < dedupWindow {
			metrics.DetectionRuns.WithLabelValues(metricName, "skipped").Inc()
			d.log.Debug("suppressing duplicate anomaly",
				zap.String("metric", metricName),
				zap.Int64("existing_id", a.ID))
			return a, nil
		}
	}

	detected := stats.Round(latest.Value, 2)
	expected := stats.Round(mean, 2)
	deviation := stats.Round((latest.Value-mean)/mean*100, 2)
	severity := severityForZ(z)

	rec := &models.AnomalyRecord{
		MetricName:    metricName,
		DetectedValue: detected,
		ExpectedValue: expected,
		Deviation:     deviation,
		Severity:      severity,
		DetectedAt:    now,
		Description: fmt.Sprintf("Detected anomaly: value %.2f deviates %.2f%% from expected %.2f",
			detected, math.Abs(deviation), expected),
	}
	if err := d.store.AddAnomaly(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist anomaly for %s: %w", metricName, err)
	}

	metrics.DetectionRuns.WithLabelValues(metricName, "anomaly").Inc()
	metrics.AnomaliesDetected.WithLabelValues(metricName, string(severity)).Inc()
	d.log.Info("anomaly detected",
		zap.String("metric", metricName),
		zap.Float64("value", detected),
		zap.Float64("expected", expected),
		zap.Float64("z_score", z),
		zap.String("severity", string(severity)))

	return rec, nil
}

func (d *detector) Resolve(ctx context.Context, id int64) (bool, error) {
	rec, err := d.store.GetAnomaly(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get anomaly %d: %w", id, err)
	}
	if rec.IsResolved {
		return false, nil
	}

	resolvedAt := d.now().UTC()
	rec.IsResolved = true
	rec.ResolvedAt = &resolvedAt
	if err := d.store.UpdateAnomaly(ctx, rec); err != nil {
		return false, fmt.Errorf("update anomaly %d: %w", id, err)
	}

	metrics.AnomaliesResolved.Inc()
	d.log.Info("anomaly resolved",
		zap.Int64("id", id),
		zap.String("metric", rec.MetricName))
	return true, nil
}

func (d *detector) Anomalies(ctx context.Context, limit int) ([]*models.AnomalyRecord, error) {
	return d.store.ListAnomalies(ctx, limit)
}

func (d *detector) Unresolved(ctx context.Context, metricName string) ([]*models.AnomalyRecord, error) {
	return d.store.ListUnresolvedAnomalies(ctx, metricName)
}

// severityForZ grades a z-score that already exceeds the detection threshold.
func severityForZ(z float64) models.AnomalySeverity {
	switch {
	case z >= 4.0:
		return models.SeverityCritical
	case z >= 3.0:
		return models.SeverityHigh
	case z >= 2.5:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
