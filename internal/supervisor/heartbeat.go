package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/registryclient"
)

// heartbeatLoop sends a heartbeat for {name}, and for {name}-server
// once it has been successfully registered, on every tick of
// heartbeat_interval until Shutdown marks the Supervisor as stopping
// (§4.3.4). It does not check whether the child process is running.
// While the worker is ready but not yet registered, each tick
// re-attempts its registration instead of heartbeating it.
func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.sendHeartbeats(ctx)
		}
	}
}

func (s *Supervisor) sendHeartbeats(ctx context.Context) {
	if s.isStopping() {
		return
	}

	if err := s.client.Heartbeat(ctx, s.cfg.Name, nil); err != nil {
		s.logger.Warn("self heartbeat failed", zap.Error(err))
		s.metrics.RecordHeartbeatFailure("self")
	}

	if !s.isWorkerRegistered() {
		if s.IsReady() {
			s.mu.RLock()
			models := s.lastModels
			s.mu.RUnlock()
			s.registerWorker(ctx, models)
		}
		return
	}

	if err := s.client.Heartbeat(ctx, s.cfg.Name+"-server", nil); err != nil {
		if registryclient.IsNotFound(err) {
			// Tolerated during initial startup, per §4.3.4.
			return
		}
		s.logger.Warn("worker heartbeat failed", zap.Error(err))
		s.metrics.RecordHeartbeatFailure("worker")
	}
}
