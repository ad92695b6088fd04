package cdr

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Records returns every completed call in insertion order.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, conn_id, behavior, created_at, answered_at, ended_at
		FROM records ORDER BY created_at, session_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var answered *time.Time
		if err := rows.Scan(&r.SessionID, &r.ConnID, &r.Behavior,
			&r.CreatedAt, &answered, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.AnsweredAt = answered
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportCSV streams every record to w as CSV, header first.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	records, err := s.Records(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"session_id", "conn_id", "behavior", "created_at", "answered_at", "ended_at", "duration_s"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		answered := ""
		if r.AnsweredAt != nil {
			answered = r.AnsweredAt.UTC().Format(time.RFC3339Nano)
		}
		row := []string{
			r.SessionID,
			r.ConnID,
			r.Behavior,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			answered,
			r.EndedAt.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(r.Duration().Seconds(), 'f', 3, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
