// Package analytics wires the analytics components into a single pipeline:
// metric ingestion, scheduled anomaly detection, KPI calculation, and
// report generation.
package analytics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/analytics/anomaly"
	"github.com/opspulse/opspulse-analytics/internal/analytics/kpi"
	"github.com/opspulse/opspulse-analytics/internal/analytics/report"
	"github.com/opspulse/opspulse-analytics/internal/analytics/trend"
	"github.com/opspulse/opspulse-analytics/internal/metrics"
	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

// defaultInterval is how often the scheduled pipeline run fires.
const defaultInterval = 5 * time.Minute

// Pipeline orchestrates ingestion, detection, KPI calculation, and reports.
type Pipeline struct {
	store    store.Store
	detector anomaly.Detector
	analyzer *trend.Analyzer
	kpis     *kpi.Calculator
	reports  *report.Aggregator
	log      *zap.Logger

	interval    time.Duration
	metricNames []string
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithInterval overrides the scheduled run interval.
func WithInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.interval = d }
}

// WithMetricNames overrides the metric types the scheduled run and the
// report cover.
func WithMetricNames(names []string) Option {
	return func(p *Pipeline) { p.metricNames = names }
}

// NewPipeline builds the analytics pipeline and its components on top of
// the given store.
func NewPipeline(s store.Store, log *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    s,
		log:      log,
		interval: defaultInterval,
		metricNames: []string{
			models.MetricResponseTime,
			models.MetricCPUUsage,
			models.MetricMemoryUsage,
			models.MetricErrorCount,
			models.MetricRequestCount,
		},
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.detector = anomaly.NewDetector(s, log.Named("anomaly"))
	p.analyzer = trend.NewAnalyzer(s, log.Named("trend"))
	p.kpis = kpi.NewCalculator(s, log.Named("kpi"))
	p.reports = report.NewAggregator(s, p.analyzer, log.Named("report"),
		report.WithMetricNames(p.metricNames))
	return p
}

// Start begins scheduled pipeline runs in the background.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		// Initial run
		p.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				p.runOnce(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the pipeline and waits for the current run to finish.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// IngestMetric stores a metric observation and immediately checks it
// against the anomaly baseline.
func (p *Pipeline) IngestMetric(ctx context.Context, name string, value float64, unit, source string) (*models.AnomalyRecord, error) {
	point := &models.MetricPoint{
		MetricName: name,
		Value:      value,
		Unit:       unit,
		Source:     source,
		Timestamp:  time.Now().UTC(),
	}
	if err := p.store.AddMetric(ctx, point); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", name, err)
	}
	metrics.MetricsIngested.WithLabelValues(name, source).Inc()

	rec, err := p.detector.Detect(ctx, name)
	if err != nil {
		// Ingestion succeeded; detection failure should not bounce the
		// metric back to the caller.
		p.log.Warn("detection after ingest failed",
			zap.String("metric", name),
			zap.Error(err))
		return nil, nil
	}
	return rec, nil
}

// IngestMetricBatch stores a batch of observations atomically, then runs
// detection once per distinct metric name in the batch.
func (p *Pipeline) IngestMetricBatch(ctx context.Context, points []*models.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	for _, pt := range points {
		if pt.Timestamp.IsZero() {
			pt.Timestamp = time.Now().UTC()
		}
	}
	if err := p.store.AddMetricBatch(ctx, points); err != nil {
		return fmt.Errorf("ingest batch: %w", err)
	}

	seen := make(map[string]bool, len(points))
	for _, pt := range points {
		metrics.MetricsIngested.WithLabelValues(pt.MetricName, pt.Source).Inc()
		if seen[pt.MetricName] {
			continue
		}
		seen[pt.MetricName] = true
		if _, err := p.detector.Detect(ctx, pt.MetricName); err != nil {
			p.log.Warn("detection after batch ingest failed",
				zap.String("metric", pt.MetricName),
				zap.Error(err))
		}
	}
	return nil
}

// runOnce runs detection across all configured metrics and recalculates
// the KPIs.
func (p *Pipeline) runOnce(ctx context.Context) {
	started := time.Now()
	status := "success"

	for _, name := range p.metricNames {
		if _, err := p.detector.Detect(ctx, name); err != nil {
			status = "error"
			p.log.Error("scheduled detection failed",
				zap.String("metric", name),
				zap.Error(err))
		}
	}

	if _, err := p.kpis.CalculateAll(ctx); err != nil {
		status = "error"
		p.log.Error("scheduled KPI calculation failed", zap.Error(err))
	}

	metrics.PipelineRuns.WithLabelValues(status).Inc()
	metrics.PipelineDuration.Observe(time.Since(started).Seconds())
}

// GenerateReport builds an analytics report over the trailing period.
func (p *Pipeline) GenerateReport(ctx context.Context, period time.Duration) (*report.Report, error) {
	return p.reports.Generate(ctx, period)
}

// Detector returns the anomaly detector.
func (p *Pipeline) Detector() anomaly.Detector { return p.detector }

// Analyzer returns the trend analyzer.
func (p *Pipeline) Analyzer() *trend.Analyzer { return p.analyzer }

// Kpis returns the KPI calculator.
func (p *Pipeline) Kpis() *kpi.Calculator { return p.kpis }

// Reports returns the report aggregator.
func (p *Pipeline) Reports() *report.Aggregator { return p.reports }
