// Package api serves the ingester status over HTTP while a continuous load runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/toll-telemetry/ingester/internal/db"
	"github.com/toll-telemetry/ingester/internal/ingest"
)

// StatusProvider returns the orchestrator snapshot
type StatusProvider interface {
	Status() ingest.Status
}

// RunRepository lists ledger entries for a day
type RunRepository interface {
	Runs(ctx context.Context, day string) ([]db.Run, error)
}

// Pinger checks store connectivity
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Handler serves the status endpoints
type Handler struct {
	status StatusProvider
	runs   RunRepository
	store  Pinger
	logger *zap.SugaredLogger
}

// NewRouter returns the status routes:
//
//	GET /health
//	GET /api/status
//	GET /api/runs/{day}
//	GET /metrics
func NewRouter(status StatusProvider, runs RunRepository, store Pinger, allowedOrigins []string, logger *zap.SugaredLogger) http.Handler {
	h := &Handler{status: status, runs: runs, store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/health", h.GetHealth)
	r.Get("/api/status", h.GetStatus)
	r.Get("/api/runs/{day}", h.GetRuns)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// GetHealth handles GET /health with a store connectivity check
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
	})
}

// GetStatus handles GET /api/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status())
}

// GetRuns handles GET /api/runs/{day}
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	if !dayPattern.MatchString(day) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "day must be YYYY-MM-DD"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	runs, err := h.runs.Runs(ctx, day)
	if err != nil {
		h.logger.Errorw("Failed to list runs", "day", day, "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to list runs"})
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Server runs the status router until its context is cancelled.
type Server struct {
	srv    *http.Server
	logger *zap.SugaredLogger
}

// NewServer returns a server listening on addr.
func NewServer(addr string, handler http.Handler, logger *zap.SugaredLogger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("api"),
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("Status server starting", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Infow("Status server stopped")
	return nil
}
