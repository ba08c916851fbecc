package router

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/metrics"
	"github.com/jkindrix/inferfleet/internal/registryclient"
)

// StaticService is one entry of the static-services config file (§6).
type StaticService struct {
	Name        string                 `json:"name"`
	Host        string                 `json:"host"`
	Port        int                    `json:"port"`
	Weight      int                    `json:"weight"`
	MaxFails    int                    `json:"max_fails"`
	FailTimeout int                    `json:"fail_timeout"`
	Backup      bool                   `json:"backup"`
	Metadata    map[string]interface{} `json:"metadata"`
}

type staticServicesFile struct {
	Services []StaticService `json:"services"`
}

// LoadStaticServices reads a static-services JSON config file and
// returns its entries. An empty path is not an error; it yields no
// entries, matching a Router started with no static backends.
func LoadStaticServices(path string) ([]StaticService, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc staticServicesFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Services, nil
}

// SeedStatic injects every static entry into pool, marked
// metadata.static = true so the registry-sync task never evicts them.
func SeedStatic(pool *Pool, services []StaticService) {
	for _, svc := range services {
		meta := svc.Metadata
		if meta == nil {
			meta = make(map[string]interface{})
		}
		meta["static"] = true
		if svc.MaxFails != 0 {
			meta["max_fails"] = svc.MaxFails
		}
		if svc.FailTimeout != 0 {
			meta["fail_timeout"] = svc.FailTimeout
		}
		if svc.Backup {
			meta["backup"] = svc.Backup
		}

		pool.Upsert(MemberSpec{
			Name:     svc.Name,
			Host:     svc.Host,
			Port:     svc.Port,
			URL:      backendURL(svc.Host, svc.Port),
			Weight:   svc.Weight,
			Healthy:  true,
			Static:   true,
			Metadata: meta,
		})
	}
}

func backendURL(host string, port int) string {
	return "http://" + host + ":" + strconv.Itoa(port)
}

// SyncerConfig configures the registry-sync task.
type SyncerConfig struct {
	Interval time.Duration
}

// Syncer periodically pulls GET /services?healthy=true from the
// Registry and reconciles the pool: unknown services are added, known
// services are refreshed, and non-static services absent from the
// response are removed. The Router never writes back to the Registry.
type Syncer struct {
	pool    *Pool
	client  *registryclient.Client
	cfg     SyncerConfig
	logger  *zap.Logger
	metrics *metrics.Router
}

// NewSyncer builds a Syncer.
func NewSyncer(pool *Pool, client *registryclient.Client, cfg SyncerConfig, logger *zap.Logger, m *metrics.Router) *Syncer {
	return &Syncer{pool: pool, client: client, cfg: cfg, logger: logger, metrics: m}
}

// Run blocks, syncing every cfg.Interval until ctx is canceled. It
// syncs once immediately so the pool is populated before the first
// request arrives.
func (s *Syncer) Run(ctx context.Context) {
	s.sync(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

func (s *Syncer) sync(ctx context.Context) {
	start := time.Now()
	services, err := s.client.ListHealthy(ctx)
	if err != nil {
		s.logger.Warn("registry sync failed", zap.Error(err))
		return
	}

	seen := make(map[string]bool, len(services))
	for _, svc := range services {
		seen[svc.Name] = true
		s.pool.Upsert(MemberSpec{
			Name:     svc.Name,
			Host:     svc.Host,
			Port:     svc.Port,
			URL:      svc.URL,
			Weight:   weightFromMetadata(svc.Metadata),
			Healthy:  svc.IsHealthy,
			Static:   false,
			Metadata: svc.Metadata,
		})
	}

	for _, name := range s.pool.Names() {
		if seen[name] {
			continue
		}
		m := s.pool.Get(name)
		if m == nil || m.isStatic() {
			continue
		}
		s.pool.Remove(name)
	}

	if s.metrics != nil {
		s.metrics.SyncDuration.Observe(time.Since(start).Seconds())
		s.metrics.PoolSize.Set(float64(s.pool.Size()))
		s.metrics.PoolHealthy.Set(float64(s.pool.HealthyCount()))
	}
}

func weightFromMetadata(metadata map[string]interface{}) int {
	if metadata == nil {
		return 1
	}
	switch v := metadata["weight"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}
