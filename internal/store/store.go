// Package store provides persistence for metric points, anomaly records,
// and KPI results. The SQLite implementation is the production store; the
// in-memory implementation backs unit tests and ephemeral deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/opspulse/opspulse-analytics/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("store: record not found")

// MetricQuery selects metric points. From/To are inclusive; zero values
// disable the bound. Results are ordered by timestamp ascending.
type MetricQuery struct {
	MetricName string
	Source     string
	From       time.Time
	To         time.Time
	Limit      int
}

// MetricStore holds raw metric observations.
// AddMetricBatch inserts all points atomically.
type MetricStore interface {
	AddMetric(ctx context.Context, p *models.MetricPoint) error
	AddMetricBatch(ctx context.Context, points []*models.MetricPoint) error
	QueryMetrics(ctx context.Context, q MetricQuery) ([]models.MetricPoint, error)
}

// AnomalyStore holds detected anomalies.
// The List methods order by detected_at descending.
type AnomalyStore interface {
	AddAnomaly(ctx context.Context, rec *models.AnomalyRecord) error
	UpdateAnomaly(ctx context.Context, rec *models.AnomalyRecord) error
	GetAnomaly(ctx context.Context, id int64) (*models.AnomalyRecord, error)
	ListAnomalies(ctx context.Context, limit int) ([]*models.AnomalyRecord, error)
	ListAnomaliesByDateRange(ctx context.Context, from, to time.Time) ([]*models.AnomalyRecord, error)
	ListUnresolvedAnomalies(ctx context.Context, metricName string) ([]*models.AnomalyRecord, error)
}

// KpiStore holds KPI calculation results, append-only.
type KpiStore interface {
	AddKpi(ctx context.Context, rec *models.KpiRecord) error
	ListKpis(ctx context.Context, limit int) ([]*models.KpiRecord, error)
	ListKpisByDateRange(ctx context.Context, from, to time.Time) ([]*models.KpiRecord, error)
}

// Store is the full persistence surface used by the analytics kernel.
type Store interface {
	MetricStore
	AnomalyStore
	KpiStore

	Ping(ctx context.Context) error
	Close() error
}
