// Package trend analyzes metric history: direction and slope via least
// squares, statistical significance of changes, hour-of-day seasonality,
// variance stability, linear forecasting, and anomaly classification.
package trend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/analytics/stats"
	"github.com/opspulse/opspulse-analytics/internal/metrics"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

var (
	// ErrInsufficientData is returned when a metric has too few points for
	// the requested analysis.
	ErrInsufficientData = errors.New("trend: insufficient data points")
	// ErrInvalidHorizon is returned for forecast horizons outside [1, 168].
	ErrInvalidHorizon = errors.New("trend: forecast horizon must be between 1 and 168 hours")
)

// TrendDirection is the overall direction of a metric.
type TrendDirection string

const (
	DirectionUpward   TrendDirection = "Upward"
	DirectionDownward TrendDirection = "Downward"
	DirectionStable   TrendDirection = "Stable"
)

const (
	// slopeStableThreshold: slopes smaller than this per-point magnitude
	// count as stable.
	slopeStableThreshold = 0.01
	// trendMinPoints is the minimum sample size for a regression-based
	// trend.
	trendMinPoints = 10
)

// TrendPoint pairs an observation with its value on the fitted line.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Actual    float64   `json:"actual"`
	Fitted    float64   `json:"fitted"`
}

// TrendAnalysis is the result of a least-squares fit over a metric period.
type TrendAnalysis struct {
	MetricName   string         `json:"metric_name"`
	Direction    TrendDirection `json:"direction"`
	Slope        float64        `json:"slope"`          // per sequence step
	SlopePerHour float64        `json:"slope_per_hour"` // normalized to wall-clock hours
	RSquared     float64        `json:"r_squared"`
	IsSustained  bool           `json:"is_sustained"` // fit explains >70% of variance
	DataPoints   int            `json:"data_points"`
	Points       []TrendPoint   `json:"points"`
	PeriodStart  time.Time      `json:"period_start"`
	PeriodEnd    time.Time      `json:"period_end"`
}

// SignificanceResult compares the first and second halves of a period with
// Welch's t-test.
type SignificanceResult struct {
	MetricName     string  `json:"metric_name"`
	BaselineMean   float64 `json:"baseline_mean"`
	ComparisonMean float64 `json:"comparison_mean"`
	ChangePercent  float64 `json:"change_percent"`
	TStatistic     float64 `json:"t_statistic"`
	PValue         float64 `json:"p_value"`
	IsSignificant  bool    `json:"is_significant"`
	Conclusion     string  `json:"conclusion"`
	Recommendation string  `json:"recommendation"`
}

// SeasonalityAnalysis reports hour-of-day periodicity.
type SeasonalityAnalysis struct {
	MetricName     string          `json:"metric_name"`
	Type           string          `json:"type"` // "hourly"
	HasSeasonality bool            `json:"has_seasonality"`
	PeakHours      []int           `json:"peak_hours"`
	LowHours       []int           `json:"low_hours"`
	HourlyAverages map[int]float64 `json:"hourly_averages,omitempty"`
	Strength       float64         `json:"strength"` // 0..1
	Note           string          `json:"note,omitempty"`
}

// VarianceAnalysis grades metric stability by coefficient of variation.
type VarianceAnalysis struct {
	MetricName string  `json:"metric_name"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Variance   float64 `json:"variance"`
	CV         float64 `json:"cv"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Range      float64 `json:"range"`
	DataPoints int     `json:"data_points"`
	Stability  string  `json:"stability"` // Stable / Moderate / Volatile
}

// Analyzer runs trend analyses against the metric store.
type Analyzer struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithNow overrides the analyzer clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an Analyzer backed by the given store.
func NewAnalyzer(s store.Store, log *zap.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		store: s,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) values(ctx context.Context, metricName string, from, to time.Time) ([]float64, error) {
	points, err := a.store.QueryMetrics(ctx, store.MetricQuery{
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

// AnalyzeTrend fits a least-squares line over the metric's sequence within
// the trailing period. The regression runs over sequence index, not wall
// clock time; SlopePerHour rescales the fitted slope to the period length.
func (a *Analyzer) AnalyzeTrend(ctx context.Context, metricName string, period time.Duration) (*TrendAnalysis, error) {
	now := a.now().UTC()
	from := now.Add(-period)

	points, err := a.store.QueryMetrics(ctx, store.MetricQuery{
		MetricName: metricName,
		From:       from,
		To:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", metricName, err)
	}
	if len(points) < trendMinPoints {
		return nil, fmt.Errorf("%w: %s has %d points, need %d",
			ErrInsufficientData, metricName, len(points), trendMinPoints)
	}

	xs := make([]float64, len(points))
	values := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(i)
		values[i] = p.Value
	}
	slope, intercept, r2, err := stats.LinearRegression(xs, values)
	if err != nil {
		if errors.Is(err, stats.ErrDegenerateInput) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientData, metricName)
		}
		return nil, err
	}

	direction := DirectionStable
	if math.Abs(slope) >= slopeStableThreshold {
		if slope > 0 {
			direction = DirectionUpward
		} else {
			direction = DirectionDownward
		}
	}

	series := make([]TrendPoint, len(points))
	for i, p := range points {
		series[i] = TrendPoint{
			Timestamp: p.Timestamp,
			Actual:    p.Value,
			Fitted:    stats.Round(slope*float64(i)+intercept, 2),
		}
	}

	result := &TrendAnalysis{
		MetricName:   metricName,
		Direction:    direction,
		Slope:        stats.Round(slope, 4),
		SlopePerHour: stats.Round(slope*float64(len(values))/period.Hours(), 4),
		RSquared:     stats.Round(r2, 3),
		IsSustained:  r2 > 0.7,
		DataPoints:   len(values),
		Points:       series,
		PeriodStart:  from,
		PeriodEnd:    now,
	}
	metrics.TrendAnalyses.WithLabelValues(metricName, string(direction)).Inc()
	return result, nil
}

// AnalyzeSignificance splits the trailing period in half and tests whether
// the mean shifted between halves. Changes with p < 0.05 count as
// significant.
func (a *Analyzer) AnalyzeSignificance(ctx context.Context, metricName string, period time.Duration) (*SignificanceResult, error) {
	now := a.now().UTC()
	from := now.Add(-period)

	values, err := a.values(ctx, metricName, from, now)
	if err != nil {
		return nil, err
	}
	if len(values) < 4 {
		return nil, fmt.Errorf("%w: %s has %d points, need 4", ErrInsufficientData, metricName, len(values))
	}

	mid := len(values) / 2
	return a.significance(metricName, values[:mid], values[mid:]), nil
}

// AnalyzeSignificanceBetween tests whether the mean shifted between two
// caller-chosen windows of the same metric, e.g. this week against last
// week. Fails when either window has no data.
func (a *Analyzer) AnalyzeSignificanceBetween(ctx context.Context, metricName string,
	baselineStart, baselineEnd, comparisonStart, comparisonEnd time.Time) (*SignificanceResult, error) {
	baseline, err := a.values(ctx, metricName, baselineStart, baselineEnd)
	if err != nil {
		return nil, err
	}
	comparison, err := a.values(ctx, metricName, comparisonStart, comparisonEnd)
	if err != nil {
		return nil, err
	}
	if len(baseline) == 0 || len(comparison) == 0 {
		return nil, fmt.Errorf("%w: %s has %d baseline and %d comparison points",
			ErrInsufficientData, metricName, len(baseline), len(comparison))
	}
	return a.significance(metricName, baseline, comparison), nil
}

func (a *Analyzer) significance(metricName string, baseline, comparison []float64) *SignificanceResult {
	meanBase := stats.Mean(baseline)
	meanComp := stats.Mean(comparison)

	var changePct float64
	if meanBase != 0 {
		changePct = (meanComp - meanBase) / meanBase * 100
	}
	changePct = stats.Round(changePct, 2)

	tStat, pValue := stats.WelchTTest(baseline, comparison)
	significant := pValue < 0.05

	var conclusion string
	switch {
	case !significant:
		conclusion = fmt.Sprintf(
			"The change of %.2f%% is NOT statistically significant (p=%.4f). This appears to be normal variance.",
			changePct, pValue)
	case changePct > 0:
		conclusion = fmt.Sprintf(
			"The increase of %.2f%% IS statistically significant (p=%.4f). This represents a real change, not random variance.",
			changePct, pValue)
	default:
		conclusion = fmt.Sprintf(
			"The decrease of %.2f%% IS statistically significant (p=%.4f). This represents a real improvement.",
			math.Abs(changePct), pValue)
	}

	var recommendation string
	switch {
	case !significant:
		recommendation = "Continue monitoring. No immediate action required."
	case changePct > 20:
		recommendation = "Investigate root cause immediately. Significant degradation detected."
	case changePct > 0:
		recommendation = "Monitor closely. Trend may continue if not addressed."
	default:
		recommendation = "Document changes that led to improvement for future reference."
	}

	return &SignificanceResult{
		MetricName:     metricName,
		BaselineMean:   stats.Round(meanBase, 2),
		ComparisonMean: stats.Round(meanComp, 2),
		ChangePercent:  changePct,
		TStatistic:     stats.Round(tStat, 4),
		PValue:         stats.Round(pValue, 4),
		IsSignificant:  significant,
		Conclusion:     conclusion,
		Recommendation: recommendation,
	}
}

// AnalyzeSeasonality buckets the trailing week by hour of day and looks for
// hours that consistently run above or below the overall mean.
func (a *Analyzer) AnalyzeSeasonality(ctx context.Context, metricName string) (*SeasonalityAnalysis, error) {
	now := a.now().UTC()
	from := now.Add(-7 * 24 * time.Hour)

	points, err := a.store.QueryMetrics(ctx, store.MetricQuery{
		MetricName: metricName,
		From:       from,
		To:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", metricName, err)
	}
	if len(points) < 24 {
		// Too little data is an answer, not a failure: no seasonality can
		// be claimed from it.
		return &SeasonalityAnalysis{
			MetricName:     metricName,
			Type:           "hourly",
			HasSeasonality: false,
			Note: fmt.Sprintf("Only %d data points in the last 7 days; at least 24 are needed to assess seasonality.",
				len(points)),
		}, nil
	}

	sums := make([]float64, 24)
	counts := make([]int, 24)
	for _, p := range points {
		h := p.Timestamp.UTC().Hour()
		sums[h] += p.Value
		counts[h]++
	}

	var hourlyMeans []float64
	hourOf := make([]int, 0, 24)
	averages := make(map[int]float64, 24)
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		m := sums[h] / float64(counts[h])
		hourlyMeans = append(hourlyMeans, m)
		hourOf = append(hourOf, h)
		averages[h] = stats.Round(m, 2)
	}

	overall := stats.Mean(hourlyMeans)
	var peaks, lows []int
	for i, m := range hourlyMeans {
		switch {
		case m > overall*1.2:
			peaks = append(peaks, hourOf[i])
		case m < overall*0.8:
			lows = append(lows, hourOf[i])
		}
	}

	// Strength scales the spread of hourly means; a CV of 0.5 or more
	// saturates at 1.
	strength := math.Min(2*stats.CoefficientOfVariation(hourlyMeans), 1)

	return &SeasonalityAnalysis{
		MetricName:     metricName,
		Type:           "hourly",
		HasSeasonality: len(peaks) > 0 && len(lows) > 0 && strength > 0.15,
		PeakHours:      peaks,
		LowHours:       lows,
		HourlyAverages: averages,
		Strength:       stats.Round(strength, 3),
	}, nil
}

// AnalyzeVariance grades how stable a metric is over the trailing period.
func (a *Analyzer) AnalyzeVariance(ctx context.Context, metricName string, period time.Duration) (*VarianceAnalysis, error) {
	now := a.now().UTC()
	from := now.Add(-period)

	values, err := a.values(ctx, metricName, from, now)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s has no points in the window", ErrInsufficientData, metricName)
	}

	mean := stats.Mean(values)
	stdDev := stats.StdDev(values, mean)
	cv := stats.CoefficientOfVariation(values)

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	stability := "Volatile"
	switch {
	case cv < 0.15:
		stability = "Stable"
	case cv < 0.30:
		stability = "Moderate"
	}

	return &VarianceAnalysis{
		MetricName: metricName,
		Mean:       stats.Round(mean, 2),
		StdDev:     stats.Round(stdDev, 2),
		Variance:   stats.Round(stdDev*stdDev, 2),
		CV:         stats.Round(cv, 3),
		Min:        min,
		Max:        max,
		Range:      max - min,
		DataPoints: len(values),
		Stability:  stability,
	}, nil
}
