// Package api exposes the monitor's query surface to dashboards:
// current status, recent anomalies and escalations, strategy success
// rates, learned profiles, Prometheus metrics, and a websocket event
// stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/monitor"
	"github.com/wardenhq/warden/internal/telemetry"
	"github.com/wardenhq/warden/internal/websocket"
)

// defaultRecent is how many anomalies/escalations list endpoints
// return when the caller does not say.
const defaultRecent = 50

// Server serves the dashboard API for one monitor.
type Server struct {
	monitor *monitor.Monitor
	metrics *telemetry.Metrics
	hub     *websocket.Hub
	mux     *http.ServeMux
	httpSrv *http.Server
}

// NewServer wires the routes. hub and metrics may be nil; their
// endpoints are simply not registered.
func NewServer(addr string, mon *monitor.Monitor, metrics *telemetry.Metrics, hub *websocket.Hub) *Server {
	s := &Server{
		monitor: mon,
		metrics: metrics,
		hub:     hub,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/anomalies", s.handleAnomalies)
	s.mux.HandleFunc("/api/escalations", s.handleEscalations)
	s.mux.HandleFunc("/api/strategies", s.handleStrategies)
	s.mux.HandleFunc("/api/profiles", s.handleProfiles)
	if metrics != nil {
		s.mux.Handle("/metrics", metrics.Handler())
	}
	if hub != nil {
		s.mux.HandleFunc("/ws", hub.HandleWebSocket)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the API.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpSrv.Addr).Msg("Dashboard API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.monitor.Status(recentParam(r)))
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.monitor.Status(recentParam(r))
	writeJSON(w, st.Anomalies)
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.monitor.Status(recentParam(r))
	writeJSON(w, st.Escalations)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.monitor.Status(0)
	writeJSON(w, st.Strategies)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.monitor.Profiles())
}

func recentParam(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return defaultRecent
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}
