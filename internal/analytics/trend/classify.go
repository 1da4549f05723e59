package trend

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opspulse/opspulse-analytics/internal/analytics/stats"
	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

// ClassificationType buckets an anomaly by its surrounding behavior.
type ClassificationType string

const (
	OneOffSpike      ClassificationType = "OneOffSpike"
	SustainedIssue   ClassificationType = "SustainedIssue"
	RecurringPattern ClassificationType = "RecurringPattern"
	UnknownPattern   ClassificationType = "Unknown"
)

// Classification explains what kind of anomaly was observed and whether it
// needs a human.
type Classification struct {
	AnomalyID       int64              `json:"anomaly_id"`
	Type            ClassificationType `json:"type"`
	Confidence      float64            `json:"confidence"` // 0..1
	RequiresAction  bool               `json:"requires_action"`
	Reasoning       string             `json:"reasoning"`
	SuggestedAction string             `json:"suggested_action"`
}

const (
	classifyWindow    = 24 * time.Hour
	classifyMinPoints = 10
	splitTolerance    = 5 * time.Minute
)

// ClassifyAnomalyByID looks up an anomaly record and classifies it. Returns
// store.ErrNotFound when no anomaly exists with the given id.
func (a *Analyzer) ClassifyAnomalyByID(ctx context.Context, id int64) (*Classification, error) {
	rec, err := a.store.GetAnomaly(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get anomaly %d: %w", id, err)
	}
	return a.ClassifyAnomaly(ctx, rec)
}

// ClassifyAnomaly compares metric behavior before and after the anomaly to
// decide whether it was a transient spike, a level shift, or part of a
// recurring pattern.
func (a *Analyzer) ClassifyAnomaly(ctx context.Context, anomaly *models.AnomalyRecord) (*Classification, error) {
	points, err := a.store.QueryMetrics(ctx, store.MetricQuery{
		MetricName: anomaly.MetricName,
		From:       anomaly.DetectedAt.Add(-classifyWindow),
		To:         anomaly.DetectedAt.Add(classifyWindow),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", anomaly.MetricName, err)
	}

	if len(points) < classifyMinPoints {
		return &Classification{
			AnomalyID:      anomaly.ID,
			Type:           UnknownPattern,
			Confidence:     0.5,
			RequiresAction: true,
			Reasoning: fmt.Sprintf("Only %d data points available around the anomaly; not enough history to classify.",
				len(points)),
			SuggestedAction: "Collect more data before drawing conclusions. Treat as actionable until classified.",
		}, nil
	}

	// Split at the observation closest to the detection time, falling back
	// to the midpoint when nothing lands near it.
	split := len(points) / 2
	for i, p := range points {
		d := p.Timestamp.Sub(anomaly.DetectedAt)
		if d < 0 {
			d = -d
		}
		if d <= splitTolerance {
			split = i
			break
		}
	}

	var before, after []float64
	for _, p := range points[:split] {
		before = append(before, p.Value)
	}
	if split+1 < len(points) {
		for _, p := range points[split+1:] {
			after = append(after, p.Value)
		}
	}

	meanBefore := stats.Mean(before)
	meanAfter := stats.Mean(after)

	switch {
	case math.Abs(meanAfter-meanBefore) < 0.1*meanBefore:
		return &Classification{
			AnomalyID:      anomaly.ID,
			Type:           OneOffSpike,
			Confidence:     0.85,
			RequiresAction: false,
			Reasoning: fmt.Sprintf("Metric returned to baseline after the anomaly (before=%.2f, after=%.2f).",
				meanBefore, meanAfter),
			SuggestedAction: "No action required. Continue normal monitoring.",
		}, nil
	case meanAfter > 1.2*meanBefore:
		return &Classification{
			AnomalyID:      anomaly.ID,
			Type:           SustainedIssue,
			Confidence:     0.90,
			RequiresAction: true,
			Reasoning: fmt.Sprintf("Metric remains elevated after the anomaly (before=%.2f, after=%.2f).",
				meanBefore, meanAfter),
			SuggestedAction: "Investigate immediately. The metric has not returned to its previous baseline.",
		}, nil
	default:
		return &Classification{
			AnomalyID:      anomaly.ID,
			Type:           RecurringPattern,
			Confidence:     0.75,
			RequiresAction: true,
			Reasoning: fmt.Sprintf("Metric shifted but not sustained above baseline (before=%.2f, after=%.2f); behavior may repeat.",
				meanBefore, meanAfter),
			SuggestedAction: "Review historical patterns and consider adjusting alerting thresholds.",
		}, nil
	}
}
