package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/clock"
	"github.com/jkindrix/inferfleet/internal/metrics"
)

// EvictorConfig configures the staleness evictor.
type EvictorConfig struct {
	Interval     time.Duration
	StalenessTTL time.Duration
}

// Evictor periodically removes records that have not heartbeated or
// been successfully polled within StalenessTTL.
type Evictor struct {
	store   *Store
	clock   clock.Clock
	cfg     EvictorConfig
	logger  *zap.Logger
	metrics *metrics.Registry
}

// NewEvictor builds an Evictor.
func NewEvictor(store *Store, c clock.Clock, cfg EvictorConfig, logger *zap.Logger, m *metrics.Registry) *Evictor {
	return &Evictor{store: store, clock: c, cfg: cfg, logger: logger, metrics: m}
}

// Run blocks, sweeping every cfg.Interval until ctx is canceled.
func (e *Evictor) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			evicted := e.store.EvictStale(e.cfg.StalenessTTL)
			if evicted > 0 {
				e.logger.Info("evicted stale services", zap.Int("count", evicted))
				if e.metrics != nil {
					for i := 0; i < evicted; i++ {
						e.metrics.EvictionsTotal.Inc()
					}
				}
			}
		}
	}
}
