package analytics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opspulse/opspulse-analytics/internal/models"
	"github.com/opspulse/opspulse-analytics/internal/store"
)

func TestPipelineIngestAndDetect(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPipeline(s, zap.NewNop())
	ctx := context.Background()

	// A flat baseline never alarms.
	for i := 0; i < 19; i++ {
		rec, err := p.IngestMetric(ctx, models.MetricResponseTime, 100, "ms", "api-gateway")
		if err != nil {
			t.Fatalf("IngestMetric %d: %v", i, err)
		}
		if rec != nil {
			t.Fatalf("unexpected anomaly on baseline point %d: %+v", i, rec)
		}
	}

	// The spike is flagged on ingest.
	rec, err := p.IngestMetric(ctx, models.MetricResponseTime, 480, "ms", "api-gateway")
	if err != nil {
		t.Fatalf("IngestMetric spike: %v", err)
	}
	if rec == nil {
		t.Fatal("expected anomaly on spike ingest")
	}
	if rec.Severity != models.SeverityCritical {
		t.Errorf("Severity = %q, want Critical", rec.Severity)
	}
}

func TestPipelineIngestBatch(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPipeline(s, zap.NewNop())
	ctx := context.Background()

	batch := make([]*models.MetricPoint, 0, 20)
	base := time.Now().UTC().Add(-20 * time.Minute)
	for i := 0; i < 20; i++ {
		batch = append(batch, &models.MetricPoint{
			MetricName: models.MetricMemoryUsage,
			Value:      60,
			Unit:       "percent",
			Source:     "node-2",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}

	if err := p.IngestMetricBatch(ctx, batch); err != nil {
		t.Fatalf("IngestMetricBatch: %v", err)
	}

	got, err := s.QueryMetrics(ctx, store.MetricQuery{MetricName: models.MetricMemoryUsage})
	if err != nil {
		t.Fatalf("QueryMetrics: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("stored %d points, want 20", len(got))
	}
}

func TestPipelineRunOnceCalculatesKpis(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPipeline(s, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := p.IngestMetric(ctx, models.MetricResponseTime, 150, "ms", "api-gateway"); err != nil {
			t.Fatalf("IngestMetric: %v", err)
		}
	}

	p.runOnce(ctx)

	kpis, err := s.ListKpis(ctx, 10)
	if err != nil {
		t.Fatalf("ListKpis: %v", err)
	}
	if len(kpis) == 0 {
		t.Fatal("expected KPI records after a pipeline run")
	}
	if kpis[0].KpiName != "Average Response Time" {
		t.Errorf("KpiName = %q", kpis[0].KpiName)
	}
	if kpis[0].CalculatedValue != 150 {
		t.Errorf("CalculatedValue = %v, want 150", kpis[0].CalculatedValue)
	}
}

func TestPipelineGenerateReport(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPipeline(s, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if _, err := p.IngestMetric(ctx, models.MetricCPUUsage, 55, "%", "node-1"); err != nil {
			t.Fatalf("IngestMetric: %v", err)
		}
	}

	r, err := p.GenerateReport(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if len(r.Metrics) != 1 {
		t.Fatalf("got %d metric sections, want 1", len(r.Metrics))
	}
	if r.Metrics[0].MetricName != models.MetricCPUUsage {
		t.Errorf("MetricName = %q", r.Metrics[0].MetricName)
	}
}

func TestPipelineStartStop(t *testing.T) {
	s := store.NewMemoryStore()
	p := NewPipeline(s, zap.NewNop(), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Start(ctx)
	// The initial run happens immediately; Stop must not hang.
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}
