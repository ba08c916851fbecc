// Package metrics provides per-component Prometheus metrics collection.
// Each of the three binaries (Registry, Router, Supervisor) runs its own
// process and registers its own metric set on its own registry, following
// the promauto.With(registerer) factory pattern.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP holds the request metrics common to every component's HTTP
// surface (management API, proxy, or both).
type HTTP struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	registry prometheus.Gatherer
}

func newHTTP(factory promauto.Factory, namespace string) HTTP {
	return HTTP{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, path, and status code",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
	}
}

// Handler returns the Prometheus HTTP handler for scraping metrics.
func (h *HTTP) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

// Middleware returns an HTTP middleware that records request metrics.
func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.RequestsInFlight.Inc()
		defer h.RequestsInFlight.Dec()

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := r.URL.Path

		h.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		h.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Registry holds the metrics exposed by the Registry binary.
type Registry struct {
	HTTP

	ServicesRegistered prometheus.Gauge
	ServicesHealthy    prometheus.Gauge
	PollDuration       prometheus.Histogram
	PollsTotal         *prometheus.CounterVec
	EvictionsTotal     prometheus.Counter
}

// NewRegistry creates Registry metrics registered on the default registry.
func NewRegistry() *Registry {
	return newRegistryWithRegisterer(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewRegistryWithRegistry creates Registry metrics on a private registry, for tests.
func NewRegistryWithRegistry(reg *prometheus.Registry) *Registry {
	return newRegistryWithRegisterer(reg, reg)
}

func newRegistryWithRegisterer(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Registry {
	factory := promauto.With(registerer)
	h := newHTTP(factory, "registry")
	h.registry = gatherer

	return &Registry{
		HTTP: h,
		ServicesRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "registry",
			Name:      "services_registered",
			Help:      "Number of services currently registered",
		}),
		ServicesHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "registry",
			Name:      "services_healthy",
			Help:      "Number of services currently marked healthy",
		}),
		PollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "registry",
			Name:      "health_poll_duration_seconds",
			Help:      "Duration of a full health-poll sweep across all services",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		PollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "health_probes_total",
			Help:      "Total number of per-service health probes by outcome",
		}, []string{"outcome"}),
		EvictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "registry",
			Name:      "staleness_evictions_total",
			Help:      "Total number of services removed for staleness",
		}),
	}
}

// RecordPoll records the outcome of one service's health probe.
func (m *Registry) RecordPoll(healthy bool) {
	outcome := "unhealthy"
	if healthy {
		outcome = "healthy"
	}
	m.PollsTotal.WithLabelValues(outcome).Inc()
}

// Router holds the metrics exposed by the Router binary.
type Router struct {
	HTTP

	PoolSize             prometheus.Gauge
	PoolHealthy          prometheus.Gauge
	ProxyRequestsTotal    *prometheus.CounterVec
	ProxyRequestDuration  *prometheus.HistogramVec
	ProxyErrorsTotal      *prometheus.CounterVec
	SyncDuration          prometheus.Histogram
}

// NewRouter creates Router metrics registered on the default registry.
func NewRouter() *Router {
	return newRouterWithRegisterer(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewRouterWithRegistry creates Router metrics on a private registry, for tests.
func NewRouterWithRegistry(reg *prometheus.Registry) *Router {
	return newRouterWithRegisterer(reg, reg)
}

func newRouterWithRegisterer(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Router {
	factory := promauto.With(registerer)
	h := newHTTP(factory, "router")
	h.registry = gatherer

	return &Router{
		HTTP: h,
		PoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "router",
			Name:      "pool_size",
			Help:      "Number of backends currently in the pool",
		}),
		PoolHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "router",
			Name:      "pool_healthy",
			Help:      "Number of backends currently marked healthy",
		}),
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "proxy_requests_total",
			Help:      "Total number of proxied requests by backend and outcome",
		}, []string{"backend", "outcome"}),
		ProxyRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "proxy_request_duration_seconds",
			Help:      "Duration of proxied requests by backend",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"backend"}),
		ProxyErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "proxy_errors_total",
			Help:      "Total number of proxy errors by backend and kind",
		}, []string{"backend", "kind"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "registry_sync_duration_seconds",
			Help:      "Duration of a registry-sync pull",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}

// RecordProxy records the outcome of one proxied request.
func (m *Router) RecordProxy(backend, outcome string, duration time.Duration) {
	m.ProxyRequestsTotal.WithLabelValues(backend, outcome).Inc()
	m.ProxyRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordProxyError records a transport-level proxy failure.
func (m *Router) RecordProxyError(backend, kind string) {
	m.ProxyErrorsTotal.WithLabelValues(backend, kind).Inc()
}

// Supervisor holds the metrics exposed by the Supervisor binary.
type Supervisor struct {
	HTTP

	RestartsTotal          prometheus.Counter
	HeartbeatFailuresTotal *prometheus.CounterVec
	WorkerUp               prometheus.Gauge
	ReadinessDuration      prometheus.Histogram
}

// NewSupervisor creates Supervisor metrics registered on the default registry.
func NewSupervisor() *Supervisor {
	return newSupervisorWithRegisterer(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewSupervisorWithRegistry creates Supervisor metrics on a private registry, for tests.
func NewSupervisorWithRegistry(reg *prometheus.Registry) *Supervisor {
	return newSupervisorWithRegisterer(reg, reg)
}

func newSupervisorWithRegisterer(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Supervisor {
	factory := promauto.With(registerer)
	h := newHTTP(factory, "supervisor")
	h.registry = gatherer

	return &Supervisor{
		HTTP: h,
		RestartsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "supervisor",
			Name:      "child_restarts_total",
			Help:      "Total number of times the supervised child process was restarted",
		}),
		HeartbeatFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supervisor",
			Name:      "heartbeat_failures_total",
			Help:      "Total number of failed heartbeat sends by target",
		}, []string{"target"}),
		WorkerUp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "supervisor",
			Name:      "worker_up",
			Help:      "1 if the supervised worker is currently ready, 0 otherwise",
		}),
		ReadinessDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "supervisor",
			Name:      "worker_readiness_duration_seconds",
			Help:      "Time from child spawn to first successful readiness probe",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// RecordHeartbeatFailure records a failed heartbeat send to a target
// ("self" or "worker").
func (m *Supervisor) RecordHeartbeatFailure(target string) {
	m.HeartbeatFailuresTotal.WithLabelValues(target).Inc()
}
