package router

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/metrics"
)

// ProxyConfig configures the per-request forwarding budget.
type ProxyConfig struct {
	Timeout time.Duration
}

// Proxy selects a healthy backend by weighted round-robin and forwards
// the request to it. Built on httputil.ReverseProxy so request and
// response bodies are streamed rather than buffered, keeping
// text/event-stream completions low-latency. The Router makes exactly
// one backend attempt per request; there is no retry on failure.
type Proxy struct {
	pool       *Pool
	cfg        ProxyConfig
	logger     *zap.Logger
	metrics    *metrics.Router
	errorRates *metrics.ErrorRateTracker
}

// NewProxy builds a Proxy.
func NewProxy(pool *Pool, cfg ProxyConfig, logger *zap.Logger, m *metrics.Router) *Proxy {
	rateCfg := metrics.DefaultErrorRateConfig()
	rateCfg.AlertCallback = func(category metrics.ErrorCategory, rate float64) {
		logger.Warn("proxy error rate exceeds threshold",
			zap.String("category", string(category)), zap.Float64("rate_per_second", rate))
	}
	return &Proxy{
		pool:       pool,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		errorRates: metrics.NewErrorRateTracker(rateCfg),
	}
}

// ErrorRateSnapshot reports the current per-category backend error rates,
// for the Router's /stats endpoint.
func (p *Proxy) ErrorRateSnapshot() map[metrics.ErrorCategory]metrics.ErrorRateSnapshot {
	return p.errorRates.Snapshot()
}

// ServeHTTP implements the Router's catch-all proxy path.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.errorRates.RecordRequest()

	member, err := p.pool.Select()
	if err != nil {
		p.errorRates.RecordError(metrics.ErrorCategoryLiveness)
		writeJSONError(w, http.StatusServiceUnavailable, "No healthy services available")
		return
	}

	target, err := url.Parse(member.urlValue())
	if err != nil {
		p.logger.Error("invalid backend url", zap.String("service", member.Name), zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Service error")
		return
	}

	start := time.Now()
	failed := false

	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(rw http.ResponseWriter, req *http.Request, proxyErr error) {
		failed = true
		p.handleProxyError(rw, member, proxyErr)
	}
	baseDirector := rp.Director
	rp.Director = func(req *http.Request) {
		baseDirector(req)
		req.Host = target.Host
		stripHostHeaders(req)
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.cfg.Timeout)
	defer cancel()

	p.logger.Info("proxying request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("backend", member.Name),
	)

	rp.ServeHTTP(w, r.WithContext(ctx))

	status := "proxied"
	if failed {
		status = "error"
	}
	p.logger.Info("proxy result",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("backend", member.Name),
		zap.String("status", status),
	)

	if p.metrics != nil && !failed {
		p.metrics.RecordProxy(member.Name, status, time.Since(start))
	}
}

func (p *Proxy) handleProxyError(w http.ResponseWriter, member *Member, err error) {
	category := classifyProxyError(err)
	if p.metrics != nil {
		p.metrics.RecordProxyError(member.Name, string(category))
	}
	p.errorRates.RecordError(category)

	if category == metrics.ErrorCategoryUpstreamTimeout {
		p.logger.Warn("backend request timed out", zap.String("service", member.Name), zap.Error(err))
		writeJSONError(w, http.StatusGatewayTimeout, "Service timeout")
		return
	}

	member.IncErrorCount()
	p.logger.Warn("backend request failed", zap.String("service", member.Name), zap.Error(err))
	writeJSONError(w, http.StatusBadGateway, "Service error")
}

func classifyProxyError(err error) metrics.ErrorCategory {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return metrics.ErrorCategoryUpstreamTimeout
	}
	return metrics.ErrorCategoryUpstreamTransport
}

// stripHostHeaders removes any host-identifying header so the proxied
// request carries the backend's own identity, not the client's.
func stripHostHeaders(req *http.Request) {
	req.Header.Del("X-Forwarded-Host")
	req.Header.Del("X-Original-Host")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
