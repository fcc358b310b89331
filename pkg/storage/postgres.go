package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/opscart/ng-market-monitor/pkg/models"
)

//go:embed migrations/*.sql
var postgresFS embed.FS

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db  *sql.DB
	dsn string
}

// NewPostgresStore opens the database, checks connectivity and applies the schema
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{
		db:  db,
		dsn: dsn,
	}

	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate runs database migrations
func (s *PostgresStore) migrate(ctx context.Context) error {
	schema, err := postgresFS.ReadFile("migrations/001_schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// SaveAlert inserts an alert unless one with the same identity exists
func (s *PostgresStore) SaveAlert(ctx context.Context, alert *models.AlertEvent) (bool, error) {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.DetectedAt.IsZero() {
		alert.DetectedAt = time.Now()
	}

	query := `
		INSERT INTO alert_events (
			id, series, kind, alert_date, value, detail, message, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (series, kind, alert_date) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query,
		alert.ID, alert.Series, string(alert.Kind), alert.Date.UTC().Format("2006-01-02"),
		alert.Value, alert.Detail, alert.Message, alert.DetectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListAlerts returns the newest alerts first. An empty series lists all.
func (s *PostgresStore) ListAlerts(ctx context.Context, series string, limit int) ([]*models.AlertEvent, error) {
	query := `
		SELECT id, series, kind, alert_date, value, detail, message, detected_at
		FROM alert_events
		WHERE ($1 = '' OR series = $1)
		ORDER BY detected_at DESC, alert_date DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, series, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]*models.AlertEvent, 0)
	for rows.Next() {
		var a models.AlertEvent
		var kind string

		if err := rows.Scan(
			&a.ID, &a.Series, &kind, &a.Date,
			&a.Value, &a.Detail, &a.Message, &a.DetectedAt,
		); err != nil {
			return nil, err
		}
		a.Kind = models.AlertKind(kind)
		alerts = append(alerts, &a)
	}

	return alerts, rows.Err()
}

// RecordRefresh appends one refresh outcome
func (s *PostgresStore) RecordRefresh(ctx context.Context, event *models.RefreshEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	query := `
		INSERT INTO refresh_events (
			id, dataset, attempted_at, success, error, series_count, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	var errText sql.NullString
	if event.Error != "" {
		errText = sql.NullString{String: event.Error, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.Dataset, event.At, event.Success, errText,
		event.SeriesCount, event.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record refresh: %w", err)
	}
	return nil
}

// ListRefreshes returns the newest refresh outcomes for a dataset first
func (s *PostgresStore) ListRefreshes(ctx context.Context, dataset string, limit int) ([]*models.RefreshEvent, error) {
	query := `
		SELECT id, dataset, attempted_at, success, error, series_count, duration_ms
		FROM refresh_events
		WHERE dataset = $1
		ORDER BY attempted_at DESC
		LIMIT $2
	`

	rows, err := s.db.QueryContext(ctx, query, dataset, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*models.RefreshEvent, 0)
	for rows.Next() {
		var e models.RefreshEvent
		var errText sql.NullString
		var durationMS int64

		if err := rows.Scan(
			&e.ID, &e.Dataset, &e.At, &e.Success, &errText,
			&e.SeriesCount, &durationMS,
		); err != nil {
			return nil, err
		}
		e.Error = errText.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, &e)
	}

	return events, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
