// Package api implements the LAN HTTP API: manual event triggers,
// diary reads and digests, quota and router introspection, recovery
// alerts, health, the live event stream, and device pairing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/huangdanqi/pawprint/internal/buildinfo"
	"github.com/huangdanqi/pawprint/internal/diary"
	"github.com/huangdanqi/pawprint/internal/events"
	"github.com/huangdanqi/pawprint/internal/health"
	"github.com/huangdanqi/pawprint/internal/pipeline"
	"github.com/huangdanqi/pawprint/internal/quota"
	"github.com/huangdanqi/pawprint/internal/recovery"
	"github.com/huangdanqi/pawprint/internal/router"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Deps are the server's collaborators. Recovery, Monitor, Bus, and
// Pairing may be nil; their endpoints answer 503.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Store    *diary.Store
	Quota    *quota.Manager
	Router   *router.Router
	Recovery *recovery.Orchestrator
	Monitor  *health.Monitor
	Statuses *recovery.StatusRegistry
	Bus      *events.Bus
	Pairing  *PairingInfo
	Logger   *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	deps    Deps
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates an API server bound to address:port.
func NewServer(address string, port int, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		deps:    deps,
		logger:  deps.Logger.With("component", "api"),
	}
}

// Handler builds the route table. Exposed for tests; Start wraps it
// with logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/events", s.handleTriggerEvent)
	mux.HandleFunc("GET /api/diary/{userID}", s.handleDiaryList)
	mux.HandleFunc("GET /api/diary/{userID}/digest", s.handleDiaryDigest)

	mux.HandleFunc("GET /api/quota", s.handleQuota)
	mux.HandleFunc("GET /api/router/stats", s.handleRouterStats)
	mux.HandleFunc("GET /api/pipeline/stats", s.handlePipelineStats)
	mux.HandleFunc("GET /api/recovery/alerts", s.handleAlerts)

	mux.HandleFunc("GET /api/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /api/pair", s.handlePair)

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	mux.HandleFunc("GET /", s.handleRoot)

	return mux
}

// Start begins serving HTTP requests. It blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.withLogging(s.Handler()),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: the event stream holds its connection open.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// --- Root and version ---

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.errorResponse(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Pawprint",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// --- Events ---

// TriggerEventRequest is the manual trigger body.
type TriggerEventRequest struct {
	EventName string         `json:"event_name"`
	UserID    string         `json:"user_id"`
	Context   map[string]any `json:"context,omitempty"`
}

// handleTriggerEvent runs one event synchronously through the full
// pipeline. 202 with the entry when one was written, 200 with
// skipped:true when the event was ineligible.
func (s *Server) handleTriggerEvent(w http.ResponseWriter, r *http.Request) {
	var req TriggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventName == "" || req.UserID == "" {
		s.errorResponse(w, http.StatusBadRequest, "event_name and user_id are required")
		return
	}

	entry, err := s.deps.Pipeline.ProcessManualEvent(r.Context(), req.EventName, req.UserID, req.Context)
	if err != nil {
		s.logger.Warn("manual event failed",
			"event_name", req.EventName, "error", err)
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if entry == nil {
		writeJSON(w, map[string]any{
			"skipped":    true,
			"event_name": req.EventName,
		}, s.logger)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, entry, s.logger)
}

// --- Diary ---

// parseDate reads an optional ?date=YYYY-MM-DD query parameter.
func parseDate(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", raw)
	}
	return &t, nil
}

func (s *Server) handleDiaryList(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	date, err := parseDate(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.deps.Store.ListByUser(userID, date)
	if err != nil {
		s.logger.Error("diary list failed", "user_id", userID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "diary query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"user_id": userID,
		"count":   len(entries),
		"entries": entries,
	}, s.logger)
}

func (s *Server) handleDiaryDigest(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	date, err := parseDate(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	day := time.Now()
	if date != nil {
		day = *date
	}

	entries, err := s.deps.Store.ListByUser(userID, &day)
	if err != nil {
		s.logger.Error("digest query failed", "user_id", userID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "diary query failed")
		return
	}

	md := diary.DailyDigest(entries, day)
	html, err := diary.RenderDigestHTML(md)
	if err != nil {
		s.logger.Error("digest render failed", "user_id", userID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "digest render failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

// --- Introspection ---

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.deps.Quota.Snapshot(), s.logger)
}

func (s *Server) handleRouterStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.deps.Router.Stats(), s.logger)
}

func (s *Server) handlePipelineStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.deps.Pipeline.Stats(), s.logger)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recovery == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "recovery not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	alerts := s.deps.Recovery.Alerts().Recent(limit)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"count":  len(alerts),
		"alerts": alerts,
	}, s.logger)
}

// --- Health ---

// handleHealthz reports per-component status. 503 when any component
// the registry tracks is unhealthy, so a supervisor can restart us.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "healthy"}

	if s.deps.Statuses != nil {
		body["components"] = s.deps.Statuses.Snapshot()
		if s.deps.Statuses.AnyUnhealthy() {
			body["status"] = "unhealthy"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			writeJSON(w, body, s.logger)
			return
		}
	}
	if s.deps.Monitor != nil {
		body["probes"] = s.deps.Monitor.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, body, s.logger)
}
