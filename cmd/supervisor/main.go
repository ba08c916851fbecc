// Package main is the entry point for the Supervisor binary.
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
	"github.com/jkindrix/inferfleet/internal/registryclient"
	"github.com/jkindrix/inferfleet/internal/shutdown"
	"github.com/jkindrix/inferfleet/internal/supervisor"
)

func main() {
	cfg, err := config.LoadSupervisorConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Component = "supervisor-" + cfg.Name
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

	logger.Info("starting supervisor",
		zap.String("name", cfg.Name),
		zap.Int("worker_port", cfg.Port),
		zap.Int("management_port", cfg.ManagementPort()),
		zap.String("service_type", cfg.ServiceType),
	)

	promReg := prometheus.NewRegistry()
	m := metrics.NewSupervisorWithRegistry(promReg)

	client := registryclient.New(&registryclient.Config{
		BaseURL: cfg.RegistryURL,
	}, logger)

	sv := supervisor.New(cfg, client, logger, m, clock.New())

	handler := supervisor.NewHandler(sv, logger)

	r := chi.NewRouter()
	correlation := middleware.NewRequestCorrelation(logger)
	r.Use(correlation.Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(m.HTTP.Middleware)

	handler.RegisterRoutes(r)
	r.Handle("/metrics", m.HTTP.Handler())

	addr := fmt.Sprintf(":%d", cfg.ManagementPort())
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	go sv.Run(runCtx)

	go func() {
		logger.Info("management server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("management server failed", zap.Error(err))
		}
	}()

	shutdownCoord := shutdown.NewCoordinator(&shutdown.Config{
		Timeout: 30 * time.Second,
	}, logger)

	shutdownCoord.RegisterFunc(shutdown.PhaseDrain, "http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "worker", func(ctx context.Context) error {
		sv.Shutdown(ctx)
		cancelRun()
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
