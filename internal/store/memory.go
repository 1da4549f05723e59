package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opspulse/opspulse-analytics/internal/models"
)

// memoryStore is a mutex-guarded in-memory Store. It backs unit tests and
// ephemeral deployments where persistence across restarts is not needed.
type memoryStore struct {
	mu        sync.RWMutex
	metrics   []models.MetricPoint
	anomalies []*models.AnomalyRecord
	kpis      []*models.KpiRecord
	nextID    int64
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{nextID: 1}
}

func (s *memoryStore) Close() error                 { return nil }
func (s *memoryStore) Ping(_ context.Context) error { return nil }

func (s *memoryStore) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// ─── Metrics ─────────────────────────────────────────────────────────────────

func (s *memoryStore) AddMetric(_ context.Context, p *models.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.allocID()
	cp := *p
	cp.Timestamp = cp.Timestamp.UTC()
	s.metrics = append(s.metrics, cp)
	return nil
}

func (s *memoryStore) AddMetricBatch(_ context.Context, points []*models.MetricPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		p.ID = s.allocID()
		cp := *p
		cp.Timestamp = cp.Timestamp.UTC()
		s.metrics = append(s.metrics, cp)
	}
	return nil
}

func (s *memoryStore) QueryMetrics(_ context.Context, q MetricQuery) ([]models.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []models.MetricPoint
	for _, p := range s.metrics {
		if q.MetricName != "" && p.MetricName != q.MetricName {
			continue
		}
		if q.Source != "" && p.Source != q.Source {
			continue
		}
		if !q.From.IsZero() && p.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && p.Timestamp.After(q.To) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// ─── Anomalies ───────────────────────────────────────────────────────────────

func (s *memoryStore) AddAnomaly(_ context.Context, rec *models.AnomalyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.allocID()
	cp := *rec
	s.anomalies = append(s.anomalies, &cp)
	return nil
}

func (s *memoryStore) UpdateAnomaly(_ context.Context, rec *models.AnomalyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.anomalies {
		if a.ID == rec.ID {
			a.IsResolved = rec.IsResolved
			a.ResolvedAt = rec.ResolvedAt
			return nil
		}
	}
	return ErrNotFound
}

func (s *memoryStore) GetAnomaly(_ context.Context, id int64) (*models.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.anomalies {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryStore) ListAnomalies(_ context.Context, limit int) ([]*models.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}

	result := make([]*models.AnomalyRecord, 0, len(s.anomalies))
	for _, a := range s.anomalies {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *memoryStore) ListAnomaliesByDateRange(_ context.Context, from, to time.Time) ([]*models.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AnomalyRecord
	for _, a := range s.anomalies {
		if !from.IsZero() && a.DetectedAt.Before(from) {
			continue
		}
		if !to.IsZero() && a.DetectedAt.After(to) {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
	})
	return result, nil
}

func (s *memoryStore) ListUnresolvedAnomalies(_ context.Context, metricName string) ([]*models.AnomalyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.AnomalyRecord
	for _, a := range s.anomalies {
		if a.IsResolved {
			continue
		}
		if metricName != "" && a.MetricName != metricName {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DetectedAt.After(result[j].DetectedAt)
	})
	return result, nil
}

// ─── KPI results ─────────────────────────────────────────────────────────────

func (s *memoryStore) AddKpi(_ context.Context, rec *models.KpiRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.allocID()
	cp := *rec
	s.kpis = append(s.kpis, &cp)
	return nil
}

func (s *memoryStore) ListKpis(_ context.Context, limit int) ([]*models.KpiRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}

	result := make([]*models.KpiRecord, 0, len(s.kpis))
	for _, k := range s.kpis {
		cp := *k
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CalculatedAt.After(result[j].CalculatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *memoryStore) ListKpisByDateRange(_ context.Context, from, to time.Time) ([]*models.KpiRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.KpiRecord
	for _, k := range s.kpis {
		if !from.IsZero() && k.CalculatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && k.CalculatedAt.After(to) {
			continue
		}
		cp := *k
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CalculatedAt.After(result[j].CalculatedAt)
	})
	return result, nil
}
