package supervisor

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the Supervisor's management HTTP surface (§4.3). It
// never proxies inference traffic; that is the Router's job.
type Handler struct {
	supervisor *Supervisor
	logger     *zap.Logger
	httpClient *http.Client
	clockNow   func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(s *Supervisor, logger *zap.Logger) *Handler {
	return &Handler{
		supervisor: s,
		logger:     logger,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clockNow:   time.Now,
	}
}

// RegisterRoutes mounts the three management endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/models", h.handleModels)
	r.Get("/info", h.handleInfo)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ready := h.supervisor.IsReady()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":                  "healthy",
		"service":                 h.supervisor.Name(),
		"babysitter":              "enhanced",
		"infinilm_server_running": ready,
		"infinilm_server_port":    h.supervisor.WorkerPort(),
		"timestamp":               h.clockNow().UTC(),
	})
}

// handleModels forward-fetches the worker's /models endpoint. The
// Supervisor itself never caches or transforms this payload.
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	if !h.supervisor.IsReady() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "worker is not ready",
		})
		return
	}

	url := "http://localhost:" + strconv.Itoa(h.supervisor.WorkerPort()) + "/models"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Warn("failed to forward-fetch worker models", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "worker is not reachable",
		})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":     h.supervisor.Name(),
		"babysitter":  "enhanced",
		"worker_port": h.supervisor.WorkerPort(),
		"status":      h.supervisor.Status(),
		"uptime":      h.supervisor.Uptime().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
