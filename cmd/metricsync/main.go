package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/trafficlens/metricsync/internal/config"
	"github.com/trafficlens/metricsync/internal/engine"
	"github.com/trafficlens/metricsync/internal/httpapi"
	"github.com/trafficlens/metricsync/internal/logger"
	"github.com/trafficlens/metricsync/internal/metrics"
	"github.com/trafficlens/metricsync/internal/prefs"
	"github.com/trafficlens/metricsync/internal/upstream"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting metricsync",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Open preference database
	prefStore, err := prefs.Open(cfg.Database.Path)
	if err != nil {
		zapLogger.Fatal("failed to open preference database", zap.Error(err), zap.String("path", cfg.Database.Path))
	}
	defer prefStore.Close()

	// Create reporting API client
	client := upstream.NewClient(&upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		APIToken:       cfg.Upstream.APIToken,
		Timeout:        cfg.Upstream.GetTimeout(),
		RatePerSecond:  cfg.Upstream.RatePerSecond,
		RateBurst:      cfg.Upstream.RateBurst,
		MaxRetries:     cfg.Upstream.MaxRetries,
		InitialBackoff: cfg.Upstream.GetInitialBackoff(),
		MaxBackoff:     cfg.Upstream.GetMaxBackoff(),
	}, zapLogger)

	// Create metrics registry
	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)

	// Create engine
	eng := engine.New(engine.Config{
		TTL:              cfg.Cache.GetTTL(),
		Capacity:         cfg.Cache.Capacity,
		Concurrency:      cfg.Sync.Concurrency,
		WaveDelay:        cfg.Sync.GetWaveDelay(),
		AutoSyncInterval: cfg.Sync.GetAutoSyncInterval(),
		MaxProperties:    cfg.Sync.MaxProperties,
	}, client, client, recorder, zapLogger)
	defer eng.Close()

	// Create HTTP server
	serverCfg := &httpapi.Config{
		BindAddr:     cfg.HTTP.BindAddr,
		ReadTimeout:  cfg.HTTP.GetReadTimeout(),
		WriteTimeout: cfg.HTTP.GetWriteTimeout(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeout(),
	}
	httpServer := httpapi.New(serverCfg, eng, prefStore, registry, zapLogger)

	// Start HTTP server
	go func() {
		if err := httpServer.Start(); err != nil {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	zapLogger.Info("application started successfully",
		zap.String("http_addr", cfg.HTTP.BindAddr),
		zap.String("upstream", cfg.Upstream.BaseURL),
	)
	<-sigChan

	zapLogger.Info("shutdown signal received, stopping services...")

	// Stop background refresh before the HTTP surface goes away
	eng.StopAutoSync()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		zapLogger.Error("failed to stop HTTP server gracefully", zap.Error(err))
	}

	zapLogger.Info("application stopped successfully")
}
