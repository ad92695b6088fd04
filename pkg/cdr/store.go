// Package cdr persists call detail records to SQLite and summarizes them.
package cdr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one completed call.
type Record struct {
	SessionID  string
	ConnID     string
	Behavior   string
	CreatedAt  time.Time
	AnsweredAt *time.Time
	EndedAt    time.Time
}

// Duration is the call's total lifetime.
func (r Record) Duration() time.Duration {
	return r.EndedAt.Sub(r.CreatedAt)
}

// Summary aggregates a run's records.
type Summary struct {
	Total       int           `json:"total"`
	Answered    int           `json:"answered"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the CDR database at dbPath.
// WAL mode keeps concurrent writers from the event path cheap.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the records table if it doesn't exist.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		session_id TEXT PRIMARY KEY,
		conn_id TEXT NOT NULL,
		behavior TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		answered_at DATETIME,
		ended_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_behavior ON records(behavior);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}
	return nil
}

// Insert persists one completed call.
func (s *Store) Insert(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO records
			(session_id, conn_id, behavior, created_at, answered_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.SessionID, r.ConnID, r.Behavior, r.CreatedAt.UTC(),
		nullableTime(r.AnsweredAt), r.EndedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Summarize aggregates every record written so far.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	var avgSeconds sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(answered_at),
			AVG((julianday(ended_at) - julianday(created_at)) * 86400.0)
		FROM records
	`).Scan(&sum.Total, &sum.Answered, &avgSeconds)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize records: %w", err)
	}
	if avgSeconds.Valid {
		sum.AvgDuration = time.Duration(avgSeconds.Float64 * float64(time.Second))
	}
	return sum, nil
}

// ByBehavior counts completed calls per behavior name.
func (s *Store) ByBehavior(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT behavior, COUNT(*) FROM records GROUP BY behavior
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan behavior count: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
