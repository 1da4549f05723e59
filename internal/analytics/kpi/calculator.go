// Package kpi calculates key performance indicators from a declarative
// definition table. Each definition names its source metric, aggregation,
// target, and direction; adding a KPI means adding a table entry, not code.
package kpi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/analytics/stats"
	"github.com/opspulse/opspulse-analytics/internal/metrics"
	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

// period is the trailing window every KPI is calculated over.
const period = 24 * time.Hour

// Aggregation selects how a definition reduces its metric points.
type Aggregation string

const (
	AggMean        Aggregation = "mean"
	AggRatePerHour Aggregation = "rate_per_hour" // sum(Metric)/periodHours
	AggRatio       Aggregation = "ratio"         // sum(Metric)/sum(DenominatorMetric)*100
)

// Definition declares one KPI.
type Definition struct {
	Name              string
	Metric            string
	DenominatorMetric string // ratio aggregation only
	Aggregation       Aggregation
	Target            float64
	LowerIsBetter     bool
	Description       string
}

// DefaultDefinitions returns the standard KPI table.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:          "Average Response Time",
			Metric:        models.MetricResponseTime,
			Aggregation:   AggMean,
			Target:        200,
			LowerIsBetter: true,
			Description:   "Average response time over the last 24 hours. Target: 200ms",
		},
		{
			Name:        "Throughput",
			Metric:      models.MetricRequestCount,
			Aggregation: AggRatePerHour,
			Target:      1000,
			Description: "Requests per hour over the last 24 hours. Target: 1000 req/hr",
		},
		{
			Name:              "Error Rate",
			Metric:            models.MetricErrorCount,
			DenominatorMetric: models.MetricRequestCount,
			Aggregation:       AggRatio,
			Target:            1.0,
			LowerIsBetter:     true,
			Description:       "Error rate percentage over the last 24 hours. Target: <1%",
		},
		{
			Name:        "System Availability",
			Metric:      models.MetricUptime,
			Aggregation: AggMean,
			Target:      99.9,
			Description: "Average system uptime percentage over the last 24 hours. Target: 99.9%",
		},
	}
}

// Calculator evaluates KPI definitions against the store.
type Calculator struct {
	store store.Store
	log   *zap.Logger
	defs  []Definition
	now   func() time.Time
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithDefinitions replaces the default KPI table.
func WithDefinitions(defs []Definition) Option {
	return func(c *Calculator) { c.defs = defs }
}

// WithNow overrides the calculator clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// NewCalculator creates a Calculator with the default definition table.
func NewCalculator(s store.Store, log *zap.Logger, opts ...Option) *Calculator {
	c := &Calculator{
		store: s,
		log:   log,
		defs:  DefaultDefinitions(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Definitions returns the active KPI table.
func (c *Calculator) Definitions() []Definition { return c.defs }

// CalculateAll evaluates every definition and persists the results.
// Definitions that cannot be evaluated (no data, zero denominator) are
// skipped rather than failing the batch.
func (c *Calculator) CalculateAll(ctx context.Context) ([]*models.KpiRecord, error) {
	var records []*models.KpiRecord
	for _, def := range c.defs {
		rec, err := c.Calculate(ctx, def)
		if err != nil {
			return nil, fmt.Errorf("calculate %s: %w", def.Name, err)
		}
		if rec == nil {
			continue
		}
		if err := c.store.AddKpi(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist %s: %w", def.Name, err)
		}
		metrics.KpiCalculations.WithLabelValues(def.Name, string(rec.Status)).Inc()
		records = append(records, rec)
	}
	return records, nil
}

// Calculate evaluates a single definition over the trailing period. It
// returns nil when the definition cannot be evaluated from the available
// data.
func (c *Calculator) Calculate(ctx context.Context, def Definition) (*models.KpiRecord, error) {
	now := c.now().UTC()
	from := now.Add(-period)

	values, err := c.queryValues(ctx, def.Metric, from, now)
	if err != nil {
		return nil, err
	}
	// Ratios tolerate an empty numerator (it sums to zero); they are
	// skipped below only when the denominator has no data.
	if len(values) == 0 && def.Aggregation != AggRatio {
		c.log.Debug("skipping KPI: no data", zap.String("kpi", def.Name))
		return nil, nil
	}

	var value float64
	switch def.Aggregation {
	case AggMean:
		value = stats.Mean(values)
	case AggRatePerHour:
		for _, v := range values {
			value += v
		}
		value /= period.Hours()
	case AggRatio:
		denomValues, err := c.queryValues(ctx, def.DenominatorMetric, from, now)
		if err != nil {
			return nil, err
		}
		var num, denom float64
		for _, v := range values {
			num += v
		}
		for _, v := range denomValues {
			denom += v
		}
		if denom == 0 {
			c.log.Debug("skipping KPI: zero denominator", zap.String("kpi", def.Name))
			return nil, nil
		}
		value = num / denom * 100
	default:
		return nil, fmt.Errorf("unknown aggregation %q", def.Aggregation)
	}

	value = stats.Round(value, 2)
	target := def.Target
	return &models.KpiRecord{
		KpiName:         def.Name,
		CalculatedValue: value,
		TargetValue:     &target,
		Status:          statusFor(value, def.Target, def.LowerIsBetter),
		CalculatedAt:    now,
		PeriodStart:     from,
		PeriodEnd:       now,
		Description:     def.Description,
	}, nil
}

func (c *Calculator) queryValues(ctx context.Context, metricName string, from, to time.Time) ([]float64, error) {
	points, err := c.store.QueryMetrics(ctx, store.MetricQuery{
		MetricName: metricName,
		From:       from,
		To:         to,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", metricName, err)
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values, nil
}

// statusFor grades a value against its target as a percentage of target.
// For lower-is-better KPIs a smaller percentage is better; for
// higher-is-better KPIs a larger one is.
func statusFor(value, target float64, lowerIsBetter bool) models.KpiStatus {
	if target == 0 {
		return models.KpiOnTarget
	}
	pct := value / target * 100

	if lowerIsBetter {
		switch {
		case pct <= 80:
			return models.KpiAboveTarget
		case pct <= 100:
			return models.KpiOnTarget
		case pct <= 150:
			return models.KpiBelowTarget
		default:
			return models.KpiCritical
		}
	}
	switch {
	case pct >= 100:
		return models.KpiAboveTarget
	case pct >= 80:
		return models.KpiOnTarget
	case pct >= 50:
		return models.KpiBelowTarget
	default:
		return models.KpiCritical
	}
}
