package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/metrics"
)

func newTestProxy(pool *Pool, timeout time.Duration) *Proxy {
	m := metrics.NewRouterWithRegistry(prometheus.NewRegistry())
	return NewProxy(pool, ProxyConfig{Timeout: timeout}, zap.NewNop(), m)
}

func TestProxy_ForwardsToSelectedBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("backend response"))
	}))
	defer backend.Close()

	pool := NewPool()
	pool.Upsert(MemberSpec{Name: "A", URL: backend.URL, Weight: 1, Healthy: true})

	proxy := newTestProxy(pool, 5*time.Second)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "backend response" {
		t.Errorf("body = %q, expected backend response", rec.Body.String())
	}

	if pool.Get("A").snapshot().RequestCount != 1 {
		t.Error("expected request count to be incremented")
	}
}

func TestProxy_NoHealthyBackends(t *testing.T) {
	pool := NewPool()
	proxy := newTestProxy(pool, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, expected 503", rec.Code)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "No healthy services available" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestProxy_BackendTransportError(t *testing.T) {
	pool := NewPool()
	pool.Upsert(MemberSpec{Name: "A", URL: "http://127.0.0.1:1", Weight: 1, Healthy: true})

	proxy := newTestProxy(pool, time.Second)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, expected 502", rec.Code)
	}
	if pool.Get("A").snapshot().ErrorCount != 1 {
		t.Error("expected error count to be incremented on transport failure")
	}
}

func TestProxy_BackendTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	pool := NewPool()
	pool.Upsert(MemberSpec{Name: "A", URL: backend.URL, Weight: 1, Healthy: true})

	proxy := newTestProxy(pool, 20*time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, expected 504", rec.Code)
	}
	if pool.Get("A").snapshot().ErrorCount != 0 {
		t.Error("expected error count not to be incremented on timeout, only on transport error")
	}
}
