// internal/api/server.go

// Package api serves the monitor's admin surface: health, status snapshot,
// maintenance toggle, alert history and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/poolwatch/internal/history"
	"github.com/FairForge/poolwatch/internal/watcher"
)

// Server is the admin HTTP server.
type Server struct {
	monitor *watcher.Monitor
	store   *history.Store
	logger  *zap.Logger
	http    *http.Server
}

// NewServer creates the admin server. store may be nil; the alerts endpoint
// then reports history as unavailable.
func NewServer(addr string, monitor *watcher.Monitor, store *history.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		monitor: monitor,
		store:   store,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Put("/maintenance", s.handleMaintenance)
		r.Get("/alerts", s.handleAlerts)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("admin API listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, s.monitor.Status())
}

type maintenanceRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.monitor.SetMaintenance(req.Enabled)
	s.respond(w, http.StatusOK, map[string]bool{"maintenance": req.Enabled})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alert history not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.store.RecentAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read alert history", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read alert history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	s.respond(w, http.StatusOK, records)
}

func (s *Server) respond(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}
