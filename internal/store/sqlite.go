package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opspulse/opspulse-analytics/internal/models"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema for the analytics persistence layer.
// Version is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS system_metrics (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name TEXT NOT NULL,
    value       REAL NOT NULL,
    unit        TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL DEFAULT '',
    timestamp   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_ts ON system_metrics(metric_name, timestamp ASC);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON system_metrics(timestamp DESC);

CREATE TABLE IF NOT EXISTS anomalies (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    metric_name     TEXT NOT NULL,
    detected_value  REAL NOT NULL,
    expected_value  REAL NOT NULL,
    deviation       REAL NOT NULL DEFAULT 0.0,
    severity        TEXT NOT NULL DEFAULT 'Low',
    detected_at     DATETIME NOT NULL,
    is_resolved     BOOLEAN NOT NULL DEFAULT 0,
    resolved_at     DATETIME,
    description     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_anomalies_detected_at ON anomalies(detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomalies_unresolved  ON anomalies(metric_name, is_resolved);
CREATE INDEX IF NOT EXISTS idx_anomalies_severity    ON anomalies(severity);

CREATE TABLE IF NOT EXISTS kpi_results (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    kpi_name         TEXT NOT NULL,
    calculated_value REAL NOT NULL,
    target_value     REAL,
    status           TEXT NOT NULL DEFAULT 'OnTarget',
    calculated_at    DATETIME NOT NULL,
    period_start     DATETIME NOT NULL,
    period_end       DATETIME NOT NULL,
    description      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_kpi_calculated_at ON kpi_results(calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_kpi_name          ON kpi_results(kpi_name);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	// Ensure schema_versions table exists before reading from it.
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Metrics ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) AddMetric(ctx context.Context, p *models.MetricPoint) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO system_metrics(metric_name, value, unit, source, timestamp)
        VALUES(?,?,?,?,?)
    `,
		p.MetricName, p.Value, p.Unit, p.Source, p.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	id, _ := result.LastInsertId()
	p.ID = id
	return nil
}

func (s *sqliteStore) AddMetricBatch(ctx context.Context, points []*models.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO system_metrics(metric_name, value, unit, source, timestamp)
        VALUES(?,?,?,?,?)
    `)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		result, err := stmt.ExecContext(ctx, p.MetricName, p.Value, p.Unit, p.Source, p.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("insert metric %s: %w", p.MetricName, err)
		}
		id, _ := result.LastInsertId()
		p.ID = id
	}
	return tx.Commit()
}

func (s *sqliteStore) QueryMetrics(ctx context.Context, q MetricQuery) ([]models.MetricPoint, error) {
	query := `SELECT id,metric_name,value,unit,source,timestamp FROM system_metrics WHERE 1=1`
	args := []any{}

	if q.MetricName != "" {
		query += ` AND metric_name = ?`
		args = append(args, q.MetricName)
	}
	if q.Source != "" {
		query += ` AND source = ?`
		args = append(args, q.Source)
	}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY timestamp ASC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.MetricPoint
	for rows.Next() {
		var p models.MetricPoint
		var ts string
		if err := rows.Scan(&p.ID, &p.MetricName, &p.Value, &p.Unit, &p.Source, &ts); err != nil {
			return nil, err
		}
		p.Timestamp, _ = parseTime(ts)
		result = append(result, p)
	}
	return result, rows.Err()
}

// ─── Anomalies ───────────────────────────────────────────────────────────────

func (s *sqliteStore) AddAnomaly(ctx context.Context, rec *models.AnomalyRecord) error {
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO anomalies(metric_name, detected_value, expected_value, deviation, severity, detected_at, is_resolved, resolved_at, description)
        VALUES(?,?,?,?,?,?,?,?,?)
    `,
		rec.MetricName, rec.DetectedValue, rec.ExpectedValue, rec.Deviation,
		string(rec.Severity), rec.DetectedAt.UTC(), rec.IsResolved,
		nullableTime(rec.ResolvedAt), rec.Description,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) UpdateAnomaly(ctx context.Context, rec *models.AnomalyRecord) error {
	result, err := s.db.ExecContext(ctx, `
        UPDATE anomalies SET is_resolved=?, resolved_at=? WHERE id=?
    `,
		rec.IsResolved, nullableTime(rec.ResolvedAt), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update anomaly %d: %w", rec.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) GetAnomaly(ctx context.Context, id int64) (*models.AnomalyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,metric_name,detected_value,expected_value,deviation,severity,detected_at,is_resolved,resolved_at,description FROM anomalies WHERE id=?`, id)
	rec, err := scanAnomaly(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *sqliteStore) ListAnomalies(ctx context.Context, limit int) ([]*models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,metric_name,detected_value,expected_value,deviation,severity,detected_at,is_resolved,resolved_at,description FROM anomalies ORDER BY detected_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.AnomalyRecord
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) ListAnomaliesByDateRange(ctx context.Context, from, to time.Time) ([]*models.AnomalyRecord, error) {
	query := `SELECT id,metric_name,detected_value,expected_value,deviation,severity,detected_at,is_resolved,resolved_at,description FROM anomalies WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND detected_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND detected_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.AnomalyRecord
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *sqliteStore) ListUnresolvedAnomalies(ctx context.Context, metricName string) ([]*models.AnomalyRecord, error) {
	query := `SELECT id,metric_name,detected_value,expected_value,deviation,severity,detected_at,is_resolved,resolved_at,description FROM anomalies WHERE is_resolved=0`
	args := []any{}
	if metricName != "" {
		query += ` AND metric_name = ?`
		args = append(args, metricName)
	}
	query += ` ORDER BY detected_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*models.AnomalyRecord
	for rows.Next() {
		rec, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnomaly(row rowScanner) (*models.AnomalyRecord, error) {
	rec := &models.AnomalyRecord{}
	var sev, detectedAt string
	var resolvedAt sql.NullString
	err := row.Scan(&rec.ID, &rec.MetricName, &rec.DetectedValue, &rec.ExpectedValue,
		&rec.Deviation, &sev, &detectedAt, &rec.IsResolved, &resolvedAt, &rec.Description)
	if err != nil {
		return nil, err
	}
	rec.Severity = models.AnomalySeverity(sev)
	rec.DetectedAt, _ = parseTime(detectedAt)
	if resolvedAt.Valid {
		if t, err := parseTime(resolvedAt.String); err == nil {
			rec.ResolvedAt = &t
		}
	}
	return rec, nil
}

// ─── KPI results ─────────────────────────────────────────────────────────────

func (s *sqliteStore) AddKpi(ctx context.Context, rec *models.KpiRecord) error {
	var target sql.NullFloat64
	if rec.TargetValue != nil {
		target = sql.NullFloat64{Float64: *rec.TargetValue, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO kpi_results(kpi_name, calculated_value, target_value, status, calculated_at, period_start, period_end, description)
        VALUES(?,?,?,?,?,?,?,?)
    `,
		rec.KpiName, rec.CalculatedValue, target, string(rec.Status),
		rec.CalculatedAt.UTC(), rec.PeriodStart.UTC(), rec.PeriodEnd.UTC(), rec.Description,
	)
	if err != nil {
		return fmt.Errorf("insert kpi: %w", err)
	}
	id, _ := result.LastInsertId()
	rec.ID = id
	return nil
}

func (s *sqliteStore) ListKpis(ctx context.Context, limit int) ([]*models.KpiRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,kpi_name,calculated_value,target_value,status,calculated_at,period_start,period_end,description FROM kpi_results ORDER BY calculated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKpis(rows)
}

func (s *sqliteStore) ListKpisByDateRange(ctx context.Context, from, to time.Time) ([]*models.KpiRecord, error) {
	query := `SELECT id,kpi_name,calculated_value,target_value,status,calculated_at,period_start,period_end,description FROM kpi_results WHERE 1=1`
	args := []any{}
	if !from.IsZero() {
		query += ` AND calculated_at >= ?`
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		query += ` AND calculated_at <= ?`
		args = append(args, to.UTC())
	}
	query += ` ORDER BY calculated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectKpis(rows)
}

func collectKpis(rows *sql.Rows) ([]*models.KpiRecord, error) {
	var result []*models.KpiRecord
	for rows.Next() {
		rec := &models.KpiRecord{}
		var status, calculatedAt, periodStart, periodEnd string
		var target sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.KpiName, &rec.CalculatedValue, &target,
			&status, &calculatedAt, &periodStart, &periodEnd, &rec.Description); err != nil {
			return nil, err
		}
		if target.Valid {
			v := target.Float64
			rec.TargetValue = &v
		}
		rec.Status = models.KpiStatus(status)
		rec.CalculatedAt, _ = parseTime(calculatedAt)
		rec.PeriodStart, _ = parseTime(periodStart)
		rec.PeriodEnd, _ = parseTime(periodEnd)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// parseTime handles multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
