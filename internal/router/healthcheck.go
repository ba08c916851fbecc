package router

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/metrics"
)

// HealthCheckerConfig configures the Router's own backend probing,
// independent of the Registry's.
type HealthCheckerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// HealthChecker probes every pool member's url+"/health" on a fixed
// interval, updating healthy/response_time/last_check. It runs
// concurrently with, and independently of, the registry-sync task.
type HealthChecker struct {
	pool    *Pool
	cfg     HealthCheckerConfig
	logger  *zap.Logger
	metrics *metrics.Router
	client  *http.Client
}

// NewHealthChecker builds a HealthChecker.
func NewHealthChecker(pool *Pool, cfg HealthCheckerConfig, logger *zap.Logger, m *metrics.Router) *HealthChecker {
	return &HealthChecker{pool: pool, cfg: cfg, logger: logger, metrics: m, client: &http.Client{}}
}

// Run blocks, probing every cfg.Interval until ctx is canceled.
func (h *HealthChecker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *HealthChecker) sweep(ctx context.Context) {
	for _, snap := range h.pool.Snapshot() {
		member := h.pool.Get(snap.Name)
		if member == nil {
			continue
		}
		h.probe(ctx, member)
	}

	if h.metrics != nil {
		h.metrics.PoolSize.Set(float64(h.pool.Size()))
		h.metrics.PoolHealthy.Set(float64(h.pool.HealthyCount()))
	}
}

func (h *HealthChecker) probe(ctx context.Context, m *Member) {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.urlValue()+"/health", nil)
	if err != nil {
		h.logger.Warn("failed to build health probe request", zap.String("service", m.Name), zap.Error(err))
		m.RecordCheck(false, time.Since(start), time.Now())
		m.IncErrorCount()
		return
	}

	resp, err := h.client.Do(req)
	if err != nil {
		m.RecordCheck(false, time.Since(start), time.Now())
		m.IncErrorCount()
		return
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	m.RecordCheck(healthy, time.Since(start), time.Now())
	if !healthy {
		m.IncErrorCount()
	}
}
