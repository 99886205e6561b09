// internal/history/history.go

// Package history records fired alerts to Postgres. Recording is
// best-effort: the monitor runs fine without a database, and a failed
// insert is logged and forgotten.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/FairForge/poolwatch/internal/policy"
)

// Record is one persisted alert.
type Record struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	FiredAt     time.Time `json:"fired_at"`
	Pool        string    `json:"pool"`
	FromPool    string    `json:"from_pool,omitempty"`
	ToPool      string    `json:"to_pool,omitempty"`
	RatePercent float64   `json:"rate_percent,omitempty"`
	ErrorCount  int       `json:"error_count,omitempty"`
	TotalCount  int       `json:"total_count,omitempty"`
	Delivered   bool      `json:"delivered"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store writes and reads alert history. A nil *Store is valid and turns
// every method into a no-op, so callers never branch on whether persistence
// is configured.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens a Postgres connection from a DSN.
func NewStore(dsn string, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("history: DSN is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Store{db: db, logger: logger}, nil
}

// EnsureSchema creates the alerts table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS poolwatch_alerts (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			fired_at     TIMESTAMPTZ NOT NULL,
			pool         TEXT NOT NULL DEFAULT '',
			from_pool    TEXT NOT NULL DEFAULT '',
			to_pool      TEXT NOT NULL DEFAULT '',
			rate_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
			error_count  INTEGER NOT NULL DEFAULT 0,
			total_count  INTEGER NOT NULL DEFAULT 0,
			delivered    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("history: create schema: %w", err)
	}
	return nil
}

// RecordAlert persists one alert intent and its delivery outcome.
// Failures are logged, never propagated: losing a history row must not
// affect monitoring.
func (s *Store) RecordAlert(ctx context.Context, intent policy.AlertIntent, delivered bool) {
	if s == nil {
		return
	}

	pool := string(intent.CurrentPool)
	if intent.Kind == policy.KindFailover {
		pool = string(intent.To)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poolwatch_alerts
			(id, kind, fired_at, pool, from_pool, to_pool, rate_percent, error_count, total_count, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
		intent.ID, string(intent.Kind), intent.At, pool,
		string(intent.From), string(intent.To),
		intent.RatePercent, intent.ErrorCount, intent.TotalCount, delivered)
	if err != nil {
		s.logger.Warn("failed to record alert history",
			zap.String("id", intent.ID), zap.Error(err))
	}
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fired_at, pool, from_pool, to_pool,
		       rate_percent, error_count, total_count, delivered, created_at
		FROM poolwatch_alerts
		ORDER BY fired_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Kind, &r.FiredAt, &r.Pool, &r.FromPool, &r.ToPool,
			&r.RatePercent, &r.ErrorCount, &r.TotalCount, &r.Delivered, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan alert: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}
