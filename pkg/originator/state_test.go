package originator

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestStateStringValues(t *testing.T) {
	cases := map[RunState]string{
		StateInitial:     "INITIAL",
		StateOriginating: "ORIGINATING",
		StateStopped:     "STOPPED",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State %d: got %q, want %q", s, got, want)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	m := newStateMachine(discardLogger())
	if !m.Is(StateInitial) {
		t.Fatalf("expected INITIAL, got %s", m.Current())
	}

	m.Change(StateOriginating)
	if !m.Is(StateOriginating) {
		t.Fatalf("expected ORIGINATING, got %s", m.Current())
	}

	m.Change(StateStopped)
	if !m.Is(StateStopped) {
		t.Fatalf("expected STOPPED, got %s", m.Current())
	}
}

func TestIdempotentTransitionDoesNotLog(t *testing.T) {
	var buf bytes.Buffer
	m := newStateMachine(slog.New(slog.NewTextHandler(&buf, nil)))

	m.Change(StateStopped)
	first := buf.Len()
	if first == 0 {
		t.Fatal("expected a log line for the first transition")
	}

	m.Change(StateStopped)
	if buf.Len() != first {
		t.Fatalf("no-op transition produced output: %s",
			strings.TrimSpace(buf.String()))
	}
	if !m.Is(StateStopped) {
		t.Fatalf("expected STOPPED, got %s", m.Current())
	}
}
