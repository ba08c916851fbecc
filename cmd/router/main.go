// Package main is the entry point for the Router binary.
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

	"github.com/jkindrix/inferfleet/internal/config"
	"github.com/jkindrix/inferfleet/internal/logging"
	"github.com/jkindrix/inferfleet/internal/metrics"
	"github.com/jkindrix/inferfleet/internal/middleware"
	"github.com/jkindrix/inferfleet/internal/registryclient"
	"github.com/jkindrix/inferfleet/internal/router"
	"github.com/jkindrix/inferfleet/internal/shutdown"
)

func main() {
	cfg, err := config.LoadRouterConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultConfig()
	logCfg.Component = "router"
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

	logger.Info("starting router",
		zap.Int("port", cfg.Port),
		zap.String("registry_url", cfg.RegistryURL),
		zap.String("static_services", cfg.StaticServicesPath),
	)

	promReg := prometheus.NewRegistry()
	m := metrics.NewRouterWithRegistry(promReg)

	pool := router.NewPool()

	static, err := router.LoadStaticServices(cfg.StaticServicesPath)
	if err != nil {
		logger.Fatal("failed to load static services", zap.Error(err))
	}
	if len(static) > 0 {
		router.SeedStatic(pool, static)
		logger.Info("seeded static services", zap.Int("count", len(static)))
	}

	client := registryclient.New(&registryclient.Config{
		BaseURL: cfg.RegistryURL,
		Timeout: cfg.RegistrySyncTimeout,
	}, logger)

	syncer := router.NewSyncer(pool, client, router.SyncerConfig{
		Interval: cfg.RegistrySyncInterval,
	}, logger, m)

	healthChecker := router.NewHealthChecker(pool, router.HealthCheckerConfig{
		Interval: cfg.HealthInterval,
		Timeout:  cfg.HealthTimeout,
	}, logger, m)

	proxy := router.NewProxy(pool, router.ProxyConfig{
		Timeout: cfg.ProxyTimeout,
	}, logger, m)

	handler := router.NewHandler(pool, proxy, cfg.RegistryURL, logger)

	r := chi.NewRouter()
	correlation := middleware.NewRequestCorrelation(logger)
	r.Use(correlation.Middleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(m.HTTP.Middleware)

	handler.RegisterRoutes(r)
	r.Handle("/metrics", m.HTTP.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
		// No ReadTimeout/WriteTimeout: proxied requests may stream
		// (Server-Sent Events) for longer than a fixed request timeout
		// would allow. The Proxy enforces its own per-request budget.
		IdleTimeout: 60 * time.Second,
	}

	syncCtx, cancelSync := context.WithCancel(context.Background())
	go syncer.Run(syncCtx)

	healthCtx, cancelHealth := context.WithCancel(context.Background())
	go healthChecker.Run(healthCtx)

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
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "registry-sync", func(ctx context.Context) error {
		cancelSync()
		return nil
	})
	shutdownCoord.RegisterFunc(shutdown.PhaseShutdown, "health-checker", func(ctx context.Context) error {
		cancelHealth()
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
