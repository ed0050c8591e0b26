package httpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"assist-server/pkg/config"
	"assist-server/pkg/metrics"
	"assist-server/pkg/session"
)

// SnapshotProvider supplies the current session view for the status
// endpoint
type SnapshotProvider interface {
	Snapshot() session.Snapshot
}

// Server exposes health, metrics and the session event stream over HTTP
type Server struct {
	logger     *logrus.Logger
	config     config.HTTPConfig
	hub        *EventHub
	snapshots  SnapshotProvider
	mux        *http.ServeMux
	httpServer *http.Server
	startTime  time.Time
}

// HealthStatus is the /healthz response body
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult is one component's health check result
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewServer creates the HTTP server and registers all routes
func NewServer(logger *logrus.Logger, cfg config.HTTPConfig, hub *EventHub) *Server {
	s := &Server{
		logger:    logger,
		config:    cfg,
		hub:       hub,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	s.mux = mux

	mux.HandleFunc("/healthz", s.healthHandler)

	if cfg.EnableMetrics {
		mux.Handle("/metrics", metrics.Handler())
	}

	if cfg.EnableWebsocket && hub != nil {
		mux.HandleFunc("/ws", hub.ServeWs)
	}

	mux.HandleFunc("/session", s.sessionHandler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// SetSnapshotProvider wires the session view served on /session
func (s *Server) SetSnapshotProvider(provider SnapshotProvider) {
	s.snapshots = provider
}

// Start begins serving in a background goroutine
func (s *Server) Start() {
	s.logger.WithField("port", s.config.Port).Info("Starting HTTP server")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server failed")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    make(map[string]CheckResult),
	}

	if s.hub != nil && s.hub.IsRunning() {
		health.Checks["websocket"] = CheckResult{
			Status:  "healthy",
			Message: "WebSocket hub is running",
		}
	} else if s.config.EnableWebsocket {
		health.Checks["websocket"] = CheckResult{
			Status:  "unhealthy",
			Message: "WebSocket hub not running",
		}
		health.Status = "degraded"
	}

	if s.snapshots != nil {
		snap := s.snapshots.Snapshot()
		health.Checks["session"] = CheckResult{
			Status:  "healthy",
			Message: fmt.Sprintf("session %s is %s", snap.ID, snap.Status),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(health)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.snapshots == nil {
		http.Error(w, "no session attached", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshots.Snapshot())
}
