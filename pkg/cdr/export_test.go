package cdr

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"
)

func TestExportCSV(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	answered := base.Add(time.Second)
	records := []Record{
		{SessionID: "a", ConnID: "sw0", Behavior: "park",
			CreatedAt: base, AnsweredAt: &answered, EndedAt: base.Add(10 * time.Second)},
		{SessionID: "b", ConnID: "sw1", Behavior: "dtmf",
			CreatedAt: base.Add(time.Second), EndedAt: base.Add(4 * time.Second)},
	}
	for _, r := range records {
		if err := s.Insert(ctx, r); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := s.ExportCSV(ctx, &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "session_id" {
		t.Fatalf("header: %v", rows[0])
	}
	if rows[1][0] != "a" || rows[1][2] != "park" || rows[1][6] != "10.000" {
		t.Fatalf("row a: %v", rows[1])
	}
	if rows[2][0] != "b" || rows[2][4] != "" {
		t.Fatalf("row b should have empty answered_at: %v", rows[2])
	}
}

func TestExportCSVEmpty(t *testing.T) {
	s := newTestStore(t)
	var buf bytes.Buffer
	if err := s.ExportCSV(context.Background(), &buf); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}
