package trend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opspulse/opspulse-analytics/internal/analytics/stats"
	"github.com/opspulse/opspulse-analytics/internal/metrics"
)

const (
	forecastLookback  = 7 * 24 * time.Hour
	forecastMinPoints = 10
	maxHorizonHours   = 168
)

// ForecastPoint is one hourly prediction with its confidence band.
type ForecastPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Predicted  float64   `json:"predicted"`
	LowerBound float64   `json:"lower_bound"`
	UpperBound float64   `json:"upper_bound"`
}

// Forecast projects a metric forward by extending its fitted trend line.
// The confidence band has constant width (±1.96 historical standard
// deviations); it does not widen with the horizon.
type Forecast struct {
	MetricName   string          `json:"metric_name"`
	HorizonHours int             `json:"horizon_hours"`
	Method       string          `json:"method"`     // "linear_regression"
	Confidence   float64         `json:"confidence"` // model fit as a percentage
	Warning      string          `json:"warning,omitempty"`
	Points       []ForecastPoint `json:"points"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// Forecast predicts hourly values for the next horizonHours (1 to 168)
// from a linear fit over the trailing week.
func (a *Analyzer) Forecast(ctx context.Context, metricName string, horizonHours int) (*Forecast, error) {
	if horizonHours < 1 || horizonHours > maxHorizonHours {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHorizon, horizonHours)
	}

	now := a.now().UTC()
	from := now.Add(-forecastLookback)

	values, err := a.values(ctx, metricName, from, now)
	if err != nil {
		return nil, err
	}
	if len(values) < forecastMinPoints {
		return nil, fmt.Errorf("%w: %s has %d points, need %d",
			ErrInsufficientData, metricName, len(values), forecastMinPoints)
	}

	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	slope, intercept, r2, err := stats.LinearRegression(xs, values)
	if err != nil {
		if errors.Is(err, stats.ErrDegenerateInput) {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientData, metricName)
		}
		return nil, err
	}

	lastFitted := slope*float64(len(values)-1) + intercept
	slopePerHour := slope * float64(len(values)) / forecastLookback.Hours()

	mean := stats.Mean(values)
	band := 1.96 * stats.StdDev(values, mean)

	points := make([]ForecastPoint, horizonHours)
	for i := 1; i <= horizonHours; i++ {
		predicted := lastFitted + slopePerHour*float64(i)
		points[i-1] = ForecastPoint{
			Timestamp:  now.Add(time.Duration(i) * time.Hour),
			Predicted:  stats.Round(predicted, 2),
			LowerBound: stats.Round(predicted-band, 2),
			UpperBound: stats.Round(predicted+band, 2),
		}
	}

	f := &Forecast{
		MetricName:   metricName,
		HorizonHours: horizonHours,
		Method:       "linear_regression",
		Confidence:   stats.Round(r2*100, 2),
		Points:       points,
		GeneratedAt:  now,
	}
	if r2 < 0.5 {
		f.Warning = fmt.Sprintf(
			"Low model fit (R²=%.3f): the metric does not follow a clear linear trend and this forecast may be unreliable.", r2)
	}

	metrics.ForecastsGenerated.Inc()
	return f, nil
}
