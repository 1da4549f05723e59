package anomaly

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

func seedMetrics(t *testing.T, s store.Store, name string, start time.Time, values []float64) {
	t.Helper()
	for i, v := range values {
		p := &models.MetricPoint{
			MetricName: name,
			Value:      v,
			Timestamp:  start.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddMetric(context.Background(), p); err != nil {
			t.Fatalf("AddMetric: %v", err)
		}
	}
}

func constantSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDetectSpike(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))

	// Flat baseline with one extreme final point.
	values := append(constantSeries(19, 100), 480)
	seedMetrics(t, s, models.MetricResponseTime, now.Add(-time.Hour), values)

	rec, err := d.Detect(context.Background(), models.MetricResponseTime)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rec == nil {
		t.Fatal("expected anomaly, got nil")
	}
	if rec.ID == 0 {
		t.Error("anomaly not persisted")
	}
	if rec.DetectedValue != 480 {
		t.Errorf("DetectedValue = %v, want 480", rec.DetectedValue)
	}
	if rec.Severity != models.SeverityCritical {
		t.Errorf("Severity = %q, want Critical", rec.Severity)
	}
	if rec.IsResolved {
		t.Error("new anomaly should be unresolved")
	}
	if rec.Description == "" {
		t.Error("missing description")
	}
	t.Logf("anomaly: %s", rec.Description)
}

func TestDetectNormalData(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))

	// Mild variation: the latest point sits well within 2 sigma.
	values := []float64{98, 102, 99, 101, 100, 97, 103, 100, 99, 101, 102, 100}
	seedMetrics(t, s, models.MetricCPUUsage, now.Add(-time.Hour), values)

	rec, err := d.Detect(context.Background(), models.MetricCPUUsage)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rec != nil {
		t.Errorf("expected no anomaly, got %+v", rec)
	}
}

func TestDetectInsufficientData(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))

	seedMetrics(t, s, models.MetricErrorCount, now.Add(-time.Hour), []float64{1, 2, 500, 3, 4})

	rec, err := d.Detect(context.Background(), models.MetricErrorCount)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil with fewer than 10 points, got %+v", rec)
	}
}

func TestDetectConstantSeries(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))

	seedMetrics(t, s, models.MetricMemoryUsage, now.Add(-time.Hour), constantSeries(15, 75))

	rec, err := d.Detect(context.Background(), models.MetricMemoryUsage)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rec != nil {
		t.Errorf("constant series should never be anomalous, got %+v", rec)
	}
}

func TestDetectDeduplicatesWithinWindow(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))
	ctx := context.Background()

	values := append(constantSeries(19, 100), 480)
	seedMetrics(t, s, models.MetricResponseTime, now.Add(-time.Hour), values)

	first, err := d.Detect(ctx, models.MetricResponseTime)
	if err != nil {
		t.Fatalf("first Detect: %v", err)
	}
	if first == nil {
		t.Fatal("first Detect returned nil")
	}

	// Five minutes later another spike arrives; the unresolved anomaly is
	// still fresh so no new record may be created.
	now = now.Add(5 * time.Minute)
	seedMetrics(t, s, models.MetricResponseTime, now, []float64{500})

	second, err := d.Detect(ctx, models.MetricResponseTime)
	if err != nil {
		t.Fatalf("second Detect: %v", err)
	}
	if second == nil {
		t.Fatal("second Detect returned nil")
	}
	if second.ID != first.ID {
		t.Errorf("second Detect created new record %d, want existing %d", second.ID, first.ID)
	}

	all, err := s.ListAnomalies(ctx, 10)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 anomaly record, got %d", len(all))
	}
}

func TestDetectCreatesNewRecordAfterDedupWindow(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))
	ctx := context.Background()

	values := append(constantSeries(19, 100), 480)
	seedMetrics(t, s, models.MetricResponseTime, now.Add(-time.Hour), values)

	first, err := d.Detect(ctx, models.MetricResponseTime)
	if err != nil || first == nil {
		t.Fatalf("first Detect: rec=%v err=%v", first, err)
	}

	// 31 minutes later the dedup window has lapsed.
	now = now.Add(31 * time.Minute)
	seedMetrics(t, s, models.MetricResponseTime, now, []float64{520})

	second, err := d.Detect(ctx, models.MetricResponseTime)
	if err != nil {
		t.Fatalf("second Detect: %v", err)
	}
	if second == nil {
		t.Fatal("second Detect returned nil")
	}
	if second.ID == first.ID {
		t.Error("expected a new anomaly record after the dedup window lapsed")
	}

	all, err := s.ListAnomalies(ctx, 10)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 anomaly records, got %d", len(all))
	}
}

func TestResolveIdempotent(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))
	ctx := context.Background()

	values := append(constantSeries(19, 100), 480)
	seedMetrics(t, s, models.MetricResponseTime, now.Add(-time.Hour), values)

	rec, err := d.Detect(ctx, models.MetricResponseTime)
	if err != nil || rec == nil {
		t.Fatalf("Detect: rec=%v err=%v", rec, err)
	}

	changed, err := d.Resolve(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !changed {
		t.Error("first Resolve should report a transition")
	}

	got, err := s.GetAnomaly(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetAnomaly: %v", err)
	}
	if !got.IsResolved || got.ResolvedAt == nil {
		t.Fatal("anomaly not marked resolved")
	}
	firstResolvedAt := *got.ResolvedAt

	// A later second Resolve must be a no-op.
	now = now.Add(2 * time.Hour)
	changed, err = d.Resolve(ctx, rec.ID)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if changed {
		t.Error("second Resolve should report false")
	}

	got, err = s.GetAnomaly(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetAnomaly after second Resolve: %v", err)
	}
	if !got.ResolvedAt.Equal(firstResolvedAt) {
		t.Errorf("ResolvedAt changed on second Resolve: %v -> %v", firstResolvedAt, got.ResolvedAt)
	}
}

func TestDetectDipDescriptionMagnitude(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))

	// A crash to 5 against a 100 baseline. The stored deviation keeps its
	// sign, but the description reports the magnitude.
	values := append(constantSeries(19, 100), 5)
	seedMetrics(t, s, models.MetricRequestCount, now.Add(-time.Hour), values)

	rec, err := d.Detect(context.Background(), models.MetricRequestCount)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if rec == nil {
		t.Fatal("expected an anomaly for the dip")
	}
	if rec.Deviation >= 0 {
		t.Errorf("Deviation = %v, want negative", rec.Deviation)
	}
	want := fmt.Sprintf("deviates %.2f%%", -rec.Deviation)
	if !strings.Contains(rec.Description, want) {
		t.Errorf("Description = %q, want it to contain %q", rec.Description, want)
	}
}

func TestResolveUnknownID(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := NewDetector(s, zap.NewNop(), WithNow(func() time.Time { return now }))

	changed, err := d.Resolve(context.Background(), 9999)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if changed {
		t.Error("resolving a missing record should report false")
	}
}

func TestSeverityForZ(t *testing.T) {
	cases := []struct {
		z    float64
		want models.AnomalySeverity
	}{
		{4.5, models.SeverityCritical},
		{4.0, models.SeverityCritical},
		{3.5, models.SeverityHigh},
		{3.0, models.SeverityHigh},
		{2.7, models.SeverityMedium},
		{2.5, models.SeverityMedium},
		{2.1, models.SeverityLow},
	}
	for _, c := range cases {
		if got := severityForZ(c.z); got != c.want {
			t.Errorf("severityForZ(%v) = %q, want %q", c.z, got, c.want)
		}
	}
}
