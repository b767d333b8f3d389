package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trafficlens/metricsync/internal/engine"
	"github.com/trafficlens/metricsync/internal/port"
	"go.uber.org/zap"
)

// Config contains HTTP server configuration
type Config struct {
	BindAddr     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		BindAddr:     "0.0.0.0:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server exposes the engine to dashboards and the assistant over HTTP.
type Server struct {
	config *Config
	engine *engine.Engine
	prefs  port.PreferenceStore
	logger *zap.Logger
	server *http.Server
}

// New creates a new HTTP server. gatherer powers /metrics and may be nil.
func New(cfg *Config, eng *engine.Engine, prefs port.PreferenceStore, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config: cfg,
		engine: eng,
		prefs:  prefs,
		logger: logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/properties/{id}/report", s.handleGetReport).Methods(http.MethodGet)
	api.HandleFunc("/reports/batch", s.handleBatch).Methods(http.MethodPost)
	api.HandleFunc("/reports/optimized", s.handleOptimized).Methods(http.MethodPost)
	api.HandleFunc("/sync/status", s.handleSyncStatus).Methods(http.MethodGet)
	api.HandleFunc("/sync/start", s.handleSyncStart).Methods(http.MethodPost)
	api.HandleFunc("/sync/stop", s.handleSyncStop).Methods(http.MethodPost)
	api.HandleFunc("/cache", s.handleClearCache).Methods(http.MethodDelete)
	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)

	api.HandleFunc("/prefs/{user}", s.handleListPrefs).Methods(http.MethodGet)
	api.HandleFunc("/prefs/{user}/{name}", s.handleGetPref).Methods(http.MethodGet)
	api.HandleFunc("/prefs/{user}/{name}", s.handleSavePref).Methods(http.MethodPut)
	api.HandleFunc("/prefs/{user}/{name}", s.handleDeletePref).Methods(http.MethodDelete)

	s.server = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      LoggingMiddleware(logger)(r),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the configured HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
