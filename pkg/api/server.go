// Package api exposes the engine's control surface over HTTP: status,
// lifecycle commands, live reconfiguration, CDR summaries and Prometheus
// metrics.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callstorm/callstorm/pkg/cdr"
	"github.com/callstorm/callstorm/pkg/originator"
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// Server encapsulates the HTTP control API.
type Server struct {
	engine *originator.Originator
	cdrs   *cdr.Store
	log    *slog.Logger
	server *http.Server
}

// NewServer wires the control routes over the given engine. cdrStore may be
// nil, in which case the summary endpoint reports 404.
func NewServer(engine *originator.Originator, cdrStore *cdr.Store, addr string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if addr == "" {
		addr = ":8090"
	}

	s := &Server{engine: engine, cdrs: cdrStore, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/start", s.handleStart)
	mux.HandleFunc("/v1/stop", s.handleStop)
	mux.HandleFunc("/v1/hupall", s.handleHupAll)
	mux.HandleFunc("/v1/shutdown", s.handleShutdown)
	mux.HandleFunc("/v1/config", s.handleConfig)
	mux.HandleFunc("/v1/summary", s.handleSummary)
	mux.HandleFunc("/v1/cdrs.csv", s.handleExport)

	handler := s.withLogging(s.withRecovery(mux))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped route handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server (blocking).
func (s *Server) Start() error {
	s.log.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("api server stopping")
	return s.server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if err := s.engine.Start(); err != nil {
		switch {
		case errors.Is(err, originator.ErrNoBehaviors):
			writeError(w, http.StatusConflict, "no_behaviors_loaded")
		case errors.Is(err, originator.ErrShutdown):
			writeError(w, http.StatusConflict, "engine_shut_down")
		default:
			s.log.Error("start failed", "trace_id", getTraceID(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "start_failed")
		}
		return
	}
	s.writeAction(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	s.engine.Stop()
	s.writeAction(w)
}

// handleHupAll stops traffic and tears down sessions. scope=all widens the
// hangup to sessions this engine did not originate.
func (s *Server) handleHupAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	var err error
	if r.URL.Query().Get("scope") == "all" {
		err = s.engine.HardHupAll()
	} else {
		err = s.engine.HupAll()
	}
	if err != nil {
		s.log.Error("hupall failed", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "hupall_failed")
		return
	}
	s.writeAction(w)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if err := s.engine.Shutdown(); err != nil {
		s.log.Error("shutdown failed", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "shutdown_failed")
		return
	}
	s.writeAction(w)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body")
		return
	}

	// auto-duration first so explicit duration in the same request wins
	if req.AutoDuration != nil {
		s.engine.SetAutoDuration(*req.AutoDuration)
	}
	if req.Limit != nil {
		s.engine.SetLimit(*req.Limit)
	}
	if req.Rate != nil {
		s.engine.SetRate(*req.Rate)
	}
	if req.DurationS != nil {
		s.engine.SetDuration(time.Duration(*req.DurationS * float64(time.Second)))
	}
	if req.MaxOffered != nil {
		s.engine.SetMaxOffered(*req.MaxOffered)
	}
	if req.PeriodS != nil {
		s.engine.SetPeriod(time.Duration(*req.PeriodS * float64(time.Second)))
	}

	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if s.cdrs == nil {
		writeError(w, http.StatusNotFound, "cdr_store_disabled")
		return
	}
	sum, err := s.cdrs.Summarize(r.Context())
	if err != nil {
		s.log.Error("summary failed", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "summary_failed")
		return
	}
	byBehavior, err := s.cdrs.ByBehavior(r.Context())
	if err != nil {
		s.log.Error("summary failed", "trace_id", getTraceID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "summary_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":     sum,
		"by_behavior": byBehavior,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	if s.cdrs == nil {
		writeError(w, http.StatusNotFound, "cdr_store_disabled")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="cdrs.csv"`)
	if err := s.cdrs.ExportCSV(r.Context(), w); err != nil {
		s.log.Error("cdr export failed", "trace_id", getTraceID(r.Context()), "error", err)
	}
}

func (s *Server) writeAction(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, ActionResponse{
		OK:    true,
		State: s.engine.State().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// Middleware: panic recovery
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.Error("panic recovered", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusInternalServerError, "internal_server_error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Middleware: request logging with trace IDs
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = generateTraceID()
		}
		ctx := context.WithValue(r.Context(), traceIDKey, traceID)
		r = r.WithContext(ctx)

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(ww, r)

		s.log.Info("http request",
			"trace_id", traceID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func generateTraceID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func getTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// statusWriter captures the HTTP status code for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
