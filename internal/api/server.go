package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/wnt/rewardsync/internal/chain"
	"github.com/wnt/rewardsync/internal/models"
	"github.com/wnt/rewardsync/internal/syncer"
)

// Orchestrator is the run surface the management API wraps. The handlers add
// no business logic on top of it.
type Orchestrator interface {
	ExecuteSync(ctx context.Context, source syncer.Source) *syncer.RunResult
	HealthCheck(ctx context.Context) syncer.Health
	Running() bool
	LastRun() *syncer.RunResult
	History(limit int) []*syncer.RunResult
	Uptime() time.Duration
}

// Reporter provides the ledger aggregates for the report endpoint.
type Reporter interface {
	Stats(ctx context.Context) (models.LedgerStats, error)
	CountPending(ctx context.Context) (int64, error)
}

// Diagnoser provides chain-side diagnostics. Nil when the chain client could
// not be configured.
type Diagnoser interface {
	Diagnostics(ctx context.Context) (chain.Diagnostics, error)
}

// Server is the management HTTP API.
type Server struct {
	orchestrator Orchestrator
	reporter     Reporter
	diagnoser    Diagnoser
	syncSpec     string
	healthSpec   string
	logger       zerolog.Logger
	httpServer   *http.Server
}

// envelope is the uniform response shape: a success flag plus either a result
// payload or an error string.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// New creates the management server listening on addr.
func New(addr string, orchestrator Orchestrator, reporter Reporter, diagnoser Diagnoser, syncSpec, healthSpec string, logger zerolog.Logger) *Server {
	s := &Server{
		orchestrator: orchestrator,
		reporter:     reporter,
		diagnoser:    diagnoser,
		syncSpec:     syncSpec,
		healthSpec:   healthSpec,
		logger:       logger.With().Str("component", "api").Logger(),
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Management API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	run := s.orchestrator.ExecuteSync(r.Context(), syncer.SourceAPI)

	status := http.StatusOK
	// Only a run that aborted before submitting anything maps to 500. Partial
	// failures and single-flight rejections still return the run with 200.
	if !run.Success && len(run.Batches) == 0 && run.Message != syncer.AlreadyRunningMessage && run.Message != "No pending rewards" {
		status = http.StatusInternalServerError
	}

	s.writeJSON(w, status, envelope{Success: run.Success, Data: run})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.orchestrator.HealthCheck(r.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, envelope{Success: health.Healthy, Data: health})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]interface{}{
			"running":        s.orchestrator.Running(),
			"last_run":       s.orchestrator.LastRun(),
			"sync_cron":      s.syncSpec,
			"health_cron":    s.healthSpec,
			"uptime_seconds": int64(s.orchestrator.Uptime().Seconds()),
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeJSON(w, http.StatusBadRequest, envelope{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: s.orchestrator.History(limit)})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := s.reporter.Stats(ctx)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, envelope{Error: err.Error()})
		return
	}

	pending, err := s.reporter.CountPending(ctx)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, envelope{Error: err.Error()})
		return
	}

	report := map[string]interface{}{
		"ledger":           stats,
		"pending_eligible": pending,
	}

	if s.diagnoser != nil {
		diag, err := s.diagnoser.Diagnostics(ctx)
		if err != nil {
			report["chain_error"] = err.Error()
		} else {
			report["chain"] = diag
		}
	} else {
		report["chain_error"] = "chain client not configured"
	}

	s.writeJSON(w, http.StatusOK, envelope{Success: true, Data: report})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
