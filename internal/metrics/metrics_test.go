package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistryWithRegistry(reg)

	if m == nil {
		t.Fatal("NewRegistryWithRegistry returned nil")
	}
	if m.ServicesRegistered == nil {
		t.Error("ServicesRegistered not initialized")
	}
	if m.PollsTotal == nil {
		t.Error("PollsTotal not initialized")
	}
}

func TestRegistryMetrics_RecordPoll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistryWithRegistry(reg)

	m.RecordPoll(true)
	m.RecordPoll(true)
	m.RecordPoll(false)

	healthy := testutil.ToFloat64(m.PollsTotal.WithLabelValues("healthy"))
	unhealthy := testutil.ToFloat64(m.PollsTotal.WithLabelValues("unhealthy"))

	if healthy != 2 {
		t.Errorf("healthy polls = %f, expected 2", healthy)
	}
	if unhealthy != 1 {
		t.Errorf("unhealthy polls = %f, expected 1", unhealthy)
	}
}

func TestRegistryMetrics_Gauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistryWithRegistry(reg)

	m.ServicesRegistered.Set(3)
	m.ServicesHealthy.Set(2)
	m.EvictionsTotal.Inc()

	if got := testutil.ToFloat64(m.ServicesRegistered); got != 3 {
		t.Errorf("ServicesRegistered = %f, expected 3", got)
	}
	if got := testutil.ToFloat64(m.ServicesHealthy); got != 2 {
		t.Errorf("ServicesHealthy = %f, expected 2", got)
	}
	if got := testutil.ToFloat64(m.EvictionsTotal); got != 1 {
		t.Errorf("EvictionsTotal = %f, expected 1", got)
	}
}

func TestNewRouterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterWithRegistry(reg)

	if m == nil {
		t.Fatal("NewRouterWithRegistry returned nil")
	}
	if m.ProxyRequestsTotal == nil {
		t.Error("ProxyRequestsTotal not initialized")
	}
}

func TestRouterMetrics_RecordProxy(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterWithRegistry(reg)

	m.RecordProxy("svc-a", "success", 50*time.Millisecond)
	m.RecordProxy("svc-a", "success", 20*time.Millisecond)
	m.RecordProxy("svc-b", "error", 10*time.Millisecond)
	m.RecordProxyError("svc-b", "upstream_transport")

	svcASuccess := testutil.ToFloat64(m.ProxyRequestsTotal.WithLabelValues("svc-a", "success"))
	svcBError := testutil.ToFloat64(m.ProxyRequestsTotal.WithLabelValues("svc-b", "error"))
	svcBErrors := testutil.ToFloat64(m.ProxyErrorsTotal.WithLabelValues("svc-b", "upstream_transport"))

	if svcASuccess != 2 {
		t.Errorf("svc-a success count = %f, expected 2", svcASuccess)
	}
	if svcBError != 1 {
		t.Errorf("svc-b error count = %f, expected 1", svcBError)
	}
	if svcBErrors != 1 {
		t.Errorf("svc-b ProxyErrorsTotal = %f, expected 1", svcBErrors)
	}
}

func TestRouterMetrics_PoolGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterWithRegistry(reg)

	m.PoolSize.Set(3)
	m.PoolHealthy.Set(2)

	if got := testutil.ToFloat64(m.PoolSize); got != 3 {
		t.Errorf("PoolSize = %f, expected 3", got)
	}
	if got := testutil.ToFloat64(m.PoolHealthy); got != 2 {
		t.Errorf("PoolHealthy = %f, expected 2", got)
	}
}

func TestNewSupervisorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSupervisorWithRegistry(reg)

	if m == nil {
		t.Fatal("NewSupervisorWithRegistry returned nil")
	}
	if m.RestartsTotal == nil {
		t.Error("RestartsTotal not initialized")
	}
}

func TestSupervisorMetrics_RecordHeartbeatFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSupervisorWithRegistry(reg)

	m.RecordHeartbeatFailure("self")
	m.RecordHeartbeatFailure("self")
	m.RecordHeartbeatFailure("worker")
	m.RestartsTotal.Inc()
	m.WorkerUp.Set(1)

	selfFailures := testutil.ToFloat64(m.HeartbeatFailuresTotal.WithLabelValues("self"))
	workerFailures := testutil.ToFloat64(m.HeartbeatFailuresTotal.WithLabelValues("worker"))

	if selfFailures != 2 {
		t.Errorf("self heartbeat failures = %f, expected 2", selfFailures)
	}
	if workerFailures != 1 {
		t.Errorf("worker heartbeat failures = %f, expected 1", workerFailures)
	}
	if got := testutil.ToFloat64(m.RestartsTotal); got != 1 {
		t.Errorf("RestartsTotal = %f, expected 1", got)
	}
	if got := testutil.ToFloat64(m.WorkerUp); got != 1 {
		t.Errorf("WorkerUp = %f, expected 1", got)
	}
}

func TestHTTP_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterWithRegistry(reg)

	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, expected %d", rr.Code, http.StatusOK)
	}

	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200"))
	if count != 1 {
		t.Errorf("request count = %f, expected 1", count)
	}
}

func TestHTTP_Middleware_InFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRouterWithRegistry(reg)

	initial := testutil.ToFloat64(m.RequestsInFlight)
	if initial != 0 {
		t.Errorf("initial in-flight = %f, expected 0", initial)
	}

	inFlightDuringHandler := float64(-1)
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inFlightDuringHandler = testutil.ToFloat64(m.RequestsInFlight)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if inFlightDuringHandler != 1 {
		t.Errorf("in-flight during handler = %f, expected 1", inFlightDuringHandler)
	}

	after := testutil.ToFloat64(m.RequestsInFlight)
	if after != 0 {
		t.Errorf("in-flight after = %f, expected 0", after)
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("WriteHeader", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		rw.WriteHeader(http.StatusNotFound)
		if rw.statusCode != http.StatusNotFound {
			t.Errorf("statusCode = %d, expected %d", rw.statusCode, http.StatusNotFound)
		}

		rw.WriteHeader(http.StatusOK)
		if rw.statusCode != http.StatusNotFound {
			t.Errorf("statusCode after second call = %d, expected %d", rw.statusCode, http.StatusNotFound)
		}
	})

	t.Run("Write", func(t *testing.T) {
		w := httptest.NewRecorder()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		rw.Write([]byte("test"))
		if rw.statusCode != http.StatusOK {
			t.Errorf("statusCode = %d, expected %d", rw.statusCode, http.StatusOK)
		}
		if !rw.written {
			t.Error("written should be true after Write")
		}
	})
}

func TestHTTP_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistryWithRegistry(reg)

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, expected %d", rr.Code, http.StatusOK)
	}
}
