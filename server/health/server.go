// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/absmach/fluxgate/gate"
)

// Config holds health check server configuration.
type Config struct {
	Address         string
	ShutdownTimeout time.Duration
}

// Server provides health check endpoints for monitoring and orchestration.
type Server struct {
	config   Config
	gate     *gate.Gate
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

// New creates a new health check server.
func New(cfg Config, g *gate.Gate, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		gate:   g,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/gate/status", s.handleGateStatus)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Addr returns the listener's network address.
// Returns an empty string if the server hasn't started listening yet.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Listen starts the health check server.
func (s *Server) Listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	s.listener = listener

	s.logger.Info("Starting health check server", "address", s.listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("Health check server shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Health check server shutdown error", "error", err)
			return err
		}

		s.logger.Info("Health check server stopped")
		return nil
	}
}

// HealthResponse represents the liveness probe response.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth implements liveness probe.
// Returns 200 OK if the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{
		Status: "healthy",
	})
}

// ReadyResponse represents the readiness probe response.
type ReadyResponse struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// handleReady implements readiness probe.
// Returns 200 OK while the gate is running. A stopped gate cannot be
// restarted, so not-ready is terminal for this process.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if s.gate == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ReadyResponse{
			Status:  "not_ready",
			Details: "gate not initialized",
		})
		return
	}

	if !s.gate.Running() {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(ReadyResponse{
			Status:  "not_ready",
			Details: "gate not running",
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ReadyResponse{
		Status: "ready",
	})
}

// GateStatusResponse represents gate state and activity totals.
type GateStatusResponse struct {
	Running          bool            `json:"running"`
	PendingRetries   int64           `json:"pending_retries"`
	OutstandingTasks int             `json:"outstanding_tasks"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	Stats            GateStats       `json:"stats"`
	Tasks            []gate.TaskInfo `json:"tasks,omitempty"`
}

// GateStats carries the gate's activity counters.
type GateStats struct {
	InboundNormal    uint64 `json:"inbound_normal"`
	InboundRetry     uint64 `json:"inbound_retry"`
	Deferrals        uint64 `json:"deferrals"`
	Requeues         uint64 `json:"requeues"`
	Releases         uint64 `json:"releases"`
	Drops            uint64 `json:"drops"`
	Underflows       uint64 `json:"underflows"`
	CancelledTasks   uint64 `json:"cancelled_tasks"`
	DiscardedRetries uint64 `json:"discarded_retries"`
}

// handleGateStatus returns the gate's current state, counters and
// outstanding deferred deliveries.
func (s *Server) handleGateStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if s.gate == nil {
		http.Error(w, "gate not initialized", http.StatusServiceUnavailable)
		return
	}

	stats := s.gate.Stats()
	response := GateStatusResponse{
		Running:          s.gate.Running(),
		PendingRetries:   s.gate.Pending(),
		OutstandingTasks: s.gate.Outstanding(),
		UptimeSeconds:    int64(stats.GetUptime().Seconds()),
		Stats: GateStats{
			InboundNormal:    stats.GetInboundNormal(),
			InboundRetry:     stats.GetInboundRetry(),
			Deferrals:        stats.GetDeferrals(),
			Requeues:         stats.GetRequeues(),
			Releases:         stats.GetReleases(),
			Drops:            stats.GetDrops(),
			Underflows:       stats.GetUnderflows(),
			CancelledTasks:   stats.GetCancelledTasks(),
			DiscardedRetries: stats.GetDiscardedRetries(),
		},
		Tasks: s.gate.Tasks(),
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
