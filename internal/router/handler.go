package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the Router's management surface (§4.2) and mounts the
// Proxy as the catch-all for everything else.
type Handler struct {
	pool        *Pool
	proxy       *Proxy
	registryURL string
	logger      *zap.Logger
	clockNow    func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(pool *Pool, proxy *Proxy, registryURL string, logger *zap.Logger) *Handler {
	return &Handler{pool: pool, proxy: proxy, registryURL: registryURL, logger: logger, clockNow: time.Now}
}

// RegisterRoutes mounts the Router's management endpoints on r and
// falls through to the proxy for every other path and method.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Get("/services", h.handleServices)
	r.NotFound(h.proxy.ServeHTTP)
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		h.proxy.ServeHTTP(w, req)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := h.pool.HealthyCount()
	status := http.StatusOK
	if healthy == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status":           healthStatusLabel(healthy),
		"healthy_services": healthy,
		"registry_url":     h.registryURL,
		"timestamp":        h.clockNow().UTC(),
	})
}

func healthStatusLabel(healthy int) string {
	if healthy == 0 {
		return "unhealthy"
	}
	return "ok"
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services":    h.pool.Snapshot(),
		"total":       h.pool.Size(),
		"healthy":     h.pool.HealthyCount(),
		"error_rates": h.proxy.ErrorRateSnapshot(),
		"timestamp":   h.clockNow().UTC(),
	})
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services": h.pool.Snapshot(),
		"total":    h.pool.Size(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
