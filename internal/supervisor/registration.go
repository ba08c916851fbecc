package supervisor

import (
	"context"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/registryclient"
)

// registerBoth registers the Supervisor itself and, once ready, the
// worker it supervises. Registration failures are non-fatal; the
// heartbeat loop re-attempts worker registration on its next tick.
func (s *Supervisor) registerBoth(ctx context.Context, models *modelsResponse) {
	managementPort := s.cfg.ManagementPort()

	_, err := s.client.Register(ctx, registryclient.Service{
		Name:      s.cfg.Name,
		Host:      s.cfg.Host,
		Port:      managementPort,
		IsHealthy: true,
		Metadata: map[string]interface{}{
			"type": "babysitter",
		},
	})
	if err != nil {
		s.logger.Warn("failed to register self with registry", zap.Error(err))
	}

	s.registerWorker(ctx, models)
}

// registerWorker registers {name}-server, marking it internally as
// registered on the first success so the heartbeat loop knows to
// start heartbeating it too.
func (s *Supervisor) registerWorker(ctx context.Context, models *modelsResponse) {
	metadata := map[string]interface{}{
		"type":           "openai-api",
		"parent_service": s.cfg.Name,
	}
	if models != nil {
		metadata["models"] = models.Models
		metadata["models_list"] = models.ModelsList
	}

	_, err := s.client.Register(ctx, registryclient.Service{
		Name:      s.cfg.Name + "-server",
		Host:      s.cfg.Host,
		Port:      s.cfg.Port,
		IsHealthy: true,
		Metadata:  metadata,
	})
	if err != nil {
		s.logger.Warn("failed to register worker with registry", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.workerRegistered = true
	s.mu.Unlock()
}
