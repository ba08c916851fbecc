package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/clock"
	"github.com/jkindrix/inferfleet/internal/metrics"
)

// PollerConfig configures the Registry's background health poller.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Poller concurrently probes every stored service's health endpoint on
// a fixed interval, deriving the probe URL from metadata.type.
type Poller struct {
	store   *Store
	clock   clock.Clock
	cfg     PollerConfig
	logger  *zap.Logger
	metrics *metrics.Registry
	client  *http.Client
}

// NewPoller builds a Poller. The HTTP client's own timeout is left
// unset; each probe request carries its own context deadline so the
// per-probe budget is exact regardless of transport-level keep-alive.
func NewPoller(store *Store, c clock.Clock, cfg PollerConfig, logger *zap.Logger, m *metrics.Registry) *Poller {
	return &Poller{
		store:   store,
		clock:   c,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		client:  &http.Client{},
	}
}

// Run blocks, polling every cfg.Interval until ctx is canceled.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.sweep(ctx)
		}
	}
}

// sweep probes every registered service concurrently and records the
// outcome. A probe failure is logged at WARN and never propagated;
// only the next sweep retries it.
func (p *Poller) sweep(ctx context.Context) {
	start := p.clock.Now()
	services := p.store.Snapshot()

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(svc *Service) {
			defer wg.Done()
			p.probeOne(ctx, svc)
		}(svc)
	}
	wg.Wait()

	if p.metrics != nil {
		p.metrics.PollDuration.Observe(p.clock.Since(start).Seconds())
		stats := p.store.ComputeStats()
		p.metrics.ServicesRegistered.Set(float64(stats.Total))
		p.metrics.ServicesHealthy.Set(float64(stats.Healthy))
	}
}

func (p *Poller) probeOne(ctx context.Context, svc *Service) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	url := probeURL(svc)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		p.logger.Warn("failed to build health probe request", zap.String("service", svc.Name), zap.Error(err))
		p.store.RecordHealth(svc.Name, false)
		p.recordOutcome(false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("health probe failed", zap.String("service", svc.Name), zap.String("url", url), zap.Error(err))
		p.store.RecordHealth(svc.Name, false)
		p.recordOutcome(false)
		return
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	if !healthy {
		p.logger.Warn("health probe returned non-200",
			zap.String("service", svc.Name),
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
		)
	}
	p.store.RecordHealth(svc.Name, healthy)
	p.recordOutcome(healthy)
}

func (p *Poller) recordOutcome(healthy bool) {
	if p.metrics != nil {
		p.metrics.RecordPoll(healthy)
	}
}

// probeURL computes the health-check URL per §4.1: type=openai-api
// records are probed on their associated Supervisor's management port
// (host:port+1); everything else is probed at record.url + /health.
func probeURL(svc *Service) string {
	if svc.MetadataType() == "openai-api" {
		return fmt.Sprintf("http://%s:%d/health", svc.Host, svc.Port+1)
	}
	return svc.URL + "/health"
}
