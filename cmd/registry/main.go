// Package main is the entry point for the Registry binary.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/clock"
	"github.com/jkindrix/inferfleet/internal/config"
	"github.com/jkindrix/inferfleet/internal/logging"
	"github.com/jkindrix/inferfleet/internal/metrics"
	"github.com/jkindrix/inferfleet/internal/middleware"
	"github.com/jkindrix/inferfleet/internal/registry"
	"github.com/jkindrix/inferfleet/internal/shutdown"
)

func main() {
	cfg, err := config.LoadRegistryConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Component = "registry"
	if env := os.Getenv("APP_ENV"); env != "" {
		logCfg.Environment = env
	}
	if logCfg.Environment == "production" {
		logCfg.Level = "info"
	} else {
		logCfg.Level = "debug"
	}
	log, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger := log.Zap()

	logger.Info("starting registry",
		zap.Int("port", cfg.Port),
		zap.Duration("health_interval", cfg.HealthInterval),
		zap.Duration("staleness_ttl", cfg.StalenessTTL),
	)

	promReg := prometheus.NewRegistry()
	m := metrics.NewRegistryWithRegistry(promReg)

	c := clock.New()
	store := registry.New(c)

	poller := registry.NewPoller(store, c, registry.PollerConfig{
		Interval: cfg.HealthInterval,
		Timeout:  cfg.HealthTimeout,
	}, logger, m)

	evictor := registry.NewEvictor(store, c, registry.EvictorConfig{
		Interval:     cfg.CleanupInterval,
		StalenessTTL: cfg.StalenessTTL,
	}, logger, m)

	handler := registry.NewHandler(store, c, poller, logger, m)

	r := chi.NewRouter()
	correlation := middleware.NewRequestCorrelation(logger)
	r.Use(correlation.Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(m.HTTP.Middleware)
	r.Use(middleware.BodySizeLimiterJSON())

	handler.RegisterRoutes(r)
	r.Handle("/metrics", m.HTTP.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollerCtx, cancelPoller := context.WithCancel(context.Background())
	go poller.Run(pollerCtx)

	evictorCtx, cancelEvictor := context.WithCancel(context.Background())
	go evictor.Run(evictorCtx)

	go func() {
		logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)

	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "poller", func(ctx context.Context) error {
		cancelPoller()
		return nil
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "evictor", func(ctx context.Context) error {
		cancelEvictor()
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdownCoord.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown completed with errors", zap.Error(err))
	}
}
