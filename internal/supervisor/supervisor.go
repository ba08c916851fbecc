// Package supervisor spawns, health-checks, registers, and restarts one
// local inference worker process and exposes a small management HTTP
// surface for it, per §4.3.
package supervisor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/clock"
	"github.com/jkindrix/inferfleet/internal/config"
	"github.com/jkindrix/inferfleet/internal/metrics"
	"github.com/jkindrix/inferfleet/internal/registryclient"
)

// terminationGrace bounds how long stop() waits for a polite signal to
// land before escalating to a forced kill (§4.3.6).
const terminationGrace = 10 * time.Second

// Supervisor brings up and maintains one worker process and represents
// it, and itself, in the Registry.
type Supervisor struct {
	cfg     *config.SupervisorConfig
	client  *registryclient.Client
	logger  *zap.Logger
	metrics *metrics.Supervisor
	clock   clock.Clock
	spawnFn func(name string, args []string, logger *zap.Logger) (*child, error)

	startedAt time.Time

	mu               sync.RWMutex
	current          *child
	status           childStatus
	restarts         int
	workerRegistered bool
	lastModels       *modelsResponse
	stopping         bool
}

// New builds a Supervisor from its config.
func New(cfg *config.SupervisorConfig, client *registryclient.Client, logger *zap.Logger, m *metrics.Supervisor, c clock.Clock) *Supervisor {
	if c == nil {
		c = clock.New()
	}
	return &Supervisor{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		metrics:   m,
		clock:     c,
		spawnFn:   spawnChild,
		startedAt: c.Now(),
		status:    statusNotStarted,
	}
}

// Run drives the supervised worker's full lifecycle: spawn, readiness
// detection, registration, heartbeats, and bounded crash restarts. It
// blocks until ctx is cancelled or the restart budget is exhausted.
func (s *Supervisor) Run(ctx context.Context) {
	heartbeatCtx, stopHeartbeats := context.WithCancel(ctx)
	defer stopHeartbeats()
	go s.heartbeatLoop(heartbeatCtx)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return
		}

		if err := s.spawnAndSupervise(ctx); err != nil {
			s.logger.Error("failed to spawn worker", zap.Error(err), zap.Int("attempt", attempt))
		}

		if s.isStopping() {
			return
		}

		s.mu.Lock()
		s.restarts++
		restarts := s.restarts
		s.mu.Unlock()

		if restarts > s.cfg.MaxRestarts {
			s.logger.Error("exceeded max restarts, no longer supervising the worker",
				zap.Int("max_restarts", s.cfg.MaxRestarts))
			s.setStatus(statusCrashed)
			return
		}
		s.metrics.RestartsTotal.Inc()

		s.logger.Warn("worker exited, restarting after delay",
			zap.Int("restart", restarts), zap.Duration("delay", s.cfg.RestartDelay))
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.cfg.RestartDelay):
		}
	}
}

// spawnAndSupervise spawns one child, waits for it to become ready,
// registers it, and blocks until it exits.
func (s *Supervisor) spawnAndSupervise(ctx context.Context) error {
	name, args, err := buildCommand(s.cfg)
	if err != nil {
		return err
	}

	s.setStatus(statusStarting)
	c, err := s.spawnFn(name, args, s.logger)
	if err != nil {
		s.setStatus(statusCrashed)
		return err
	}

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()

	readyCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	models, err := pollReady(readyCtx, s.cfg.Host, s.cfg.Port, s.cfg.ReadyTimeout, s.logger)
	cancel()

	if err != nil {
		s.logger.Error("worker never became ready", zap.Error(err))
		s.setStatus(statusCrashed)
		_ = c.stop(context.Background(), terminationGrace)
		return err
	}

	elapsed := s.clock.Since(c.startedAt)
	s.metrics.ReadinessDuration.Observe(elapsed.Seconds())
	s.logger.Info("worker ready", zap.Duration("elapsed", elapsed), zap.Strings("models", models.ids()))

	s.mu.Lock()
	s.lastModels = models
	s.mu.Unlock()
	s.setStatus(statusReady)
	s.metrics.WorkerUp.Set(1)

	s.registerBoth(ctx, models)

	<-c.done
	s.metrics.WorkerUp.Set(0)
	if c.wasStopped() {
		return nil
	}
	s.setStatus(statusCrashed)
	s.logger.Warn("worker process exited", zap.Error(c.exitError()))
	return nil
}

// Shutdown stops accepting heartbeats, best-effort unregisters both
// services, then terminates the child with signal escalation (§4.3.6).
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.stopping = true
	c := s.current
	s.mu.Unlock()

	_ = s.client.Deregister(ctx, s.cfg.Name)
	if s.isWorkerRegistered() {
		_ = s.client.Deregister(ctx, s.cfg.Name+"-server")
	}

	if c != nil {
		_ = c.stop(ctx, terminationGrace)
	}
}

func (s *Supervisor) isStopping() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopping
}

func (s *Supervisor) setStatus(st childStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Status reports the current child lifecycle state.
func (s *Supervisor) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.status)
}

// IsReady reports whether the worker is currently believed healthy.
func (s *Supervisor) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == statusReady
}

// WorkerPort returns the configured worker port.
func (s *Supervisor) WorkerPort() int {
	return s.cfg.Port
}

// Name returns the configured service name.
func (s *Supervisor) Name() string {
	return s.cfg.Name
}

// Uptime returns how long this Supervisor process has been running.
func (s *Supervisor) Uptime() time.Duration {
	return s.clock.Since(s.startedAt)
}

func (s *Supervisor) isWorkerRegistered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workerRegistered
}
