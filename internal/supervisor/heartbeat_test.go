package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/clock"
	"github.com/jkindrix/inferfleet/internal/config"
	"github.com/jkindrix/inferfleet/internal/metrics"
	"github.com/jkindrix/inferfleet/internal/registryclient"
)

func TestHeartbeatLoop_SendsSelfHeartbeatOnly(t *testing.T) {
	var selfHits, workerHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/services/x/heartbeat":
			atomic.AddInt32(&selfHits, 1)
		case "/services/x-server/heartbeat":
			atomic.AddInt32(&workerHits, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &config.SupervisorConfig{Name: "x", HeartbeatInterval: time.Hour}
	client := registryclient.New(&registryclient.Config{BaseURL: server.URL}, zap.NewNop())
	m := metrics.NewSupervisorWithRegistry(prometheus.NewRegistry())
	sv := New(cfg, client, zap.NewNop(), m, clock.New())

	sv.sendHeartbeats(context.Background())

	if atomic.LoadInt32(&selfHits) != 1 {
		t.Errorf("self heartbeats = %d, expected 1", selfHits)
	}
	if atomic.LoadInt32(&workerHits) != 0 {
		t.Errorf("worker heartbeats = %d, expected 0 before worker registration", workerHits)
	}
}

func TestHeartbeatLoop_SendsWorkerHeartbeatOnceRegistered(t *testing.T) {
	var workerHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/services/x-server/heartbeat" {
			atomic.AddInt32(&workerHits, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &config.SupervisorConfig{Name: "x", HeartbeatInterval: time.Hour}
	client := registryclient.New(&registryclient.Config{BaseURL: server.URL}, zap.NewNop())
	m := metrics.NewSupervisorWithRegistry(prometheus.NewRegistry())
	sv := New(cfg, client, zap.NewNop(), m, clock.New())
	sv.mu.Lock()
	sv.workerRegistered = true
	sv.mu.Unlock()

	sv.sendHeartbeats(context.Background())

	if atomic.LoadInt32(&workerHits) != 1 {
		t.Errorf("worker heartbeats = %d, expected 1", workerHits)
	}
}

func TestHeartbeatLoop_SkipsAfterStopping(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := &config.SupervisorConfig{Name: "x", HeartbeatInterval: time.Hour}
	client := registryclient.New(&registryclient.Config{BaseURL: server.URL}, zap.NewNop())
	m := metrics.NewSupervisorWithRegistry(prometheus.NewRegistry())
	sv := New(cfg, client, zap.NewNop(), m, clock.New())
	sv.mu.Lock()
	sv.stopping = true
	sv.mu.Unlock()

	sv.sendHeartbeats(context.Background())

	if atomic.LoadInt32(&hits) != 0 {
		t.Errorf("hits = %d, expected 0 once stopping", hits)
	}
}
