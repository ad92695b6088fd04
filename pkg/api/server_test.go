package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/callstorm/callstorm/pkg/cdr"
	"github.com/callstorm/callstorm/pkg/originator"
	"github.com/callstorm/callstorm/pkg/pool"
)

type holdBehavior struct{}

func (holdBehavior) Name() string          { return "hold" }
func (holdBehavior) Register(p *pool.Pool) {}

func newTestServer(t *testing.T, loadBehavior bool) (*Server, *originator.Originator) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := pool.DefaultSimConfig()
	cfg.SetupDelay = time.Millisecond
	cfg.AnswerDelay = time.Millisecond
	sim := pool.NewSwitchSim("sw0", cfg)
	p, err := pool.New(sim)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}

	settings := originator.DefaultSettings()
	settings.Rate = 1
	settings.Limit = 1
	settings.MaxOffered = 1
	eng := originator.New(p, log, settings)
	if loadBehavior {
		if err := eng.LoadBehavior(holdBehavior{}, 1); err != nil {
			t.Fatalf("LoadBehavior: %v", err)
		}
	}

	store, err := cdr.NewStore(filepath.Join(t.TempDir(), "cdr.db"))
	if err != nil {
		t.Fatalf("cdr.NewStore: %v", err)
	}
	t.Cleanup(func() {
		eng.Shutdown()
		store.Close()
		p.Close()
	})

	return NewServer(eng, store, ":0", log), eng
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status: %d", w.Code)
	}
	if w.Header().Get("X-Trace-ID") == "" {
		t.Fatal("missing trace id header")
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code: %d, body: %s", w.Code, w.Body.String())
	}
	var st originator.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.State != "INITIAL" {
		t.Fatalf("state: got %q", st.State)
	}
	if st.Rate != 1 || st.Limit != 1 {
		t.Fatalf("settings in status: %+v", st)
	}
}

func TestStartWithoutBehaviorsConflicts(t *testing.T) {
	s, _ := newTestServer(t, false)
	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/start", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if e.Error != "no_behaviors_loaded" {
		t.Fatalf("error code: %q", e.Error)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	s, eng := newTestServer(t, true)

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: %d %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(time.Second)
	for eng.TotalOriginated() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if eng.TotalOriginated() != 1 {
		t.Fatalf("total originated: %d", eng.TotalOriginated())
	}

	w = doJSON(t, s.Handler(), http.MethodPost, "/v1/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: %d", w.Code)
	}
	var resp ActionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode action: %v", err)
	}
	if !resp.OK || resp.State != "STOPPED" {
		t.Fatalf("action response: %+v", resp)
	}
}

func TestConfigPartialUpdate(t *testing.T) {
	s, eng := newTestServer(t, true)

	rate := 40.0
	limit := 200
	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/config", ConfigRequest{
		Rate:  &rate,
		Limit: &limit,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("config: %d %s", w.Code, w.Body.String())
	}
	if eng.Rate() != 40 || eng.Limit() != 200 {
		t.Fatalf("engine not updated: rate=%v limit=%d", eng.Rate(), eng.Limit())
	}
	// auto-duration: 200/40 + 5s
	if got := eng.Duration(); got != 10*time.Second {
		t.Fatalf("auto duration: got %v", got)
	}
}

func TestConfigRejectsBadJSON(t *testing.T) {
	s, _ := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodPost, "/v1/config", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHupAllScopes(t *testing.T) {
	s, eng := newTestServer(t, true)
	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/hupall", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hupall: %d", w.Code)
	}
	if eng.State() != originator.StateStopped {
		t.Fatalf("state after hupall: %s", eng.State())
	}

	w = doJSON(t, s.Handler(), http.MethodPost, "/v1/hupall?scope=all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hupall scope=all: %d", w.Code)
	}
}

func TestShutdownMakesStartConflict(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/shutdown", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("shutdown: %d", w.Code)
	}
	w = doJSON(t, s.Handler(), http.MethodPost, "/v1/start", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("start after shutdown: %d", w.Code)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/summary", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Summary    cdr.Summary    `json:"summary"`
		ByBehavior map[string]int `json:"by_behavior"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if out.Summary.Total != 0 {
		t.Fatalf("fresh store should be empty: %+v", out.Summary)
	}
}

func TestExportEndpoint(t *testing.T) {
	s, _ := newTestServer(t, true)
	w := doJSON(t, s.Handler(), http.MethodGet, "/v1/cdrs.csv", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type: %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("session_id,")) {
		t.Fatalf("body should start with csv header: %q", w.Body.String())
	}
}

func TestMethodGuards(t *testing.T) {
	s, _ := newTestServer(t, true)
	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/v1/status"},
		{http.MethodGet, "/v1/start"},
		{http.MethodGet, "/v1/stop"},
		{http.MethodGet, "/v1/config"},
	}
	for _, c := range cases {
		w := doJSON(t, s.Handler(), c.method, c.path, nil)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: got %d, want 405", c.method, c.path, w.Code)
		}
	}
}
