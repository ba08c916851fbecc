package registry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/clock"
	apperrors "github.com/jkindrix/inferfleet/internal/errors"
	"github.com/jkindrix/inferfleet/internal/metrics"
)

// Handler serves the Registry's public HTTP contract (§4.1).
type Handler struct {
	store      *Store
	clock      clock.Clock
	logger     *zap.Logger
	metrics    *metrics.Registry
	poller     *Poller
	startedAt  time.Time
	errorRates *metrics.ErrorRateTracker
}

// NewHandler builds a Handler.
func NewHandler(store *Store, c clock.Clock, poller *Poller, logger *zap.Logger, m *metrics.Registry) *Handler {
	rateCfg := metrics.DefaultErrorRateConfig()
	rateCfg.AlertCallback = func(category metrics.ErrorCategory, rate float64) {
		logger.Warn("registry error rate exceeds threshold",
			zap.String("category", string(category)), zap.Float64("rate_per_second", rate))
	}
	return &Handler{
		store:      store,
		clock:      c,
		logger:     logger,
		metrics:    m,
		poller:     poller,
		startedAt:  c.NowUTC(),
		errorRates: metrics.NewErrorRateTracker(rateCfg),
	}
}

// RegisterRoutes mounts the Registry's HTTP surface on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/stats", h.handleStats)
	r.Get("/services", h.handleList)
	r.Post("/services", h.handleCreate)
	r.Get("/services/{name}", h.handleGet)
	r.Put("/services/{name}", h.handleUpdate)
	r.Delete("/services/{name}", h.handleDelete)
	r.Get("/services/{name}/health", h.handleServiceHealth)
	r.Post("/services/{name}/heartbeat", h.handleHeartbeat)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.store.ComputeStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              "ok",
		"registered_services": stats.Total,
		"healthy_services":    stats.Healthy,
		"timestamp":           h.clock.NowUTC(),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.store.ComputeStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":          stats.Total,
		"healthy":        stats.Healthy,
		"by_status":      stats.StatusCounts,
		"by_host":        stats.HostCounts,
		"uptime_seconds": h.clock.Since(h.startedAt).Seconds(),
		"error_rates":    h.errorRates.Snapshot(),
		"timestamp":      h.clock.NowUTC(),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := Filter{Status: r.URL.Query().Get("status")}
	if v := r.URL.Query().Get("healthy"); v != "" {
		b := v == "true"
		filter.Healthy = &b
	}

	services := h.store.List(filter)
	records := make([]Record, len(services))
	for i, svc := range services {
		records[i] = toRecord(svc, h.clock)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"services":  records,
		"total":     len(records),
		"timestamp": h.clock.NowUTC(),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	svc, ok := h.store.Get(name)
	if !ok {
		h.writeError(w, apperrors.NotFound(name))
		return
	}
	writeJSON(w, http.StatusOK, toRecord(svc, h.clock))
}

// createRequest is the POST /services body. name, host, port, hostname,
// url, and status are required; metadata and timestamp are optional.
type createRequest struct {
	Name      string                 `json:"name"`
	Host      string                 `json:"host"`
	Port      int                    `json:"port"`
	Hostname  string                 `json:"hostname"`
	URL       string                 `json:"url"`
	Status    string                 `json:"status"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp *time.Time             `json:"timestamp"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.ValidationFailed("invalid JSON body"))
		return
	}

	for field, value := range map[string]string{
		"name":     req.Name,
		"host":     req.Host,
		"hostname": req.Hostname,
		"url":      req.URL,
		"status":   req.Status,
	} {
		if value == "" {
			h.writeError(w, apperrors.MissingField(field))
			return
		}
	}
	if req.Port == 0 {
		h.writeError(w, apperrors.MissingField("port"))
		return
	}

	svc := &Service{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Hostname: req.Hostname,
		URL:      req.URL,
		Status:   req.Status,
		Metadata: req.Metadata,
	}
	if req.Timestamp != nil {
		svc.Timestamp = *req.Timestamp
	}

	stored := h.store.Register(svc)
	h.logger.Info("service registered", zap.String("name", stored.Name), zap.String("host", stored.Host), zap.Int("port", stored.Port))
	writeJSON(w, http.StatusCreated, toRecord(stored, h.clock))
}

// updateRequest is the PUT /services/{name} body: any subset of fields.
type updateRequest struct {
	Host     *string                `json:"host"`
	Port     *int                   `json:"port"`
	Hostname *string                `json:"hostname"`
	URL      *string                `json:"url"`
	Status   *string                `json:"status"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.ValidationFailed("invalid JSON body"))
		return
	}

	svc, err := h.store.Update(name, Patch{
		Host:     req.Host,
		Port:     req.Port,
		Hostname: req.Hostname,
		URL:      req.URL,
		Status:   req.Status,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecord(svc, h.clock))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.store.Delete(name); err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("service deregistered", zap.String("name", name))
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "name": name})
}

func (h *Handler) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	svc, ok := h.store.Get(name)
	if !ok {
		h.writeError(w, apperrors.NotFound(name))
		return
	}

	h.poller.probeOne(r.Context(), svc)

	svc, _ = h.store.Get(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"health_status":  svc.HealthStatus,
		"is_healthy":     svc.IsHealthy(h.clock),
		"last_heartbeat": svc.LastHeartbeat,
	})
}

type heartbeatRequest struct {
	Status *string `json:"status"`
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req heartbeatRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, apperrors.ValidationFailed("invalid JSON body"))
			return
		}
	}

	if err := h.store.Heartbeat(name, req.Status); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "name": name})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	appErr := apperrors.WrapWithOp(err, "registry")
	h.errorRates.RecordError(categoryForCode(appErr.Code))
	writeJSON(w, appErr.HTTPStatus(), appErr.ToEnvelope())
}

func categoryForCode(code apperrors.Code) metrics.ErrorCategory {
	switch code {
	case apperrors.CodeValidation:
		return metrics.ErrorCategoryValidation
	case apperrors.CodeNotFound:
		return metrics.ErrorCategoryNotFound
	case apperrors.CodeLiveness:
		return metrics.ErrorCategoryLiveness
	case apperrors.CodeUpstreamTimeout:
		return metrics.ErrorCategoryUpstreamTimeout
	case apperrors.CodeUpstreamTransport:
		return metrics.ErrorCategoryUpstreamTransport
	default:
		return metrics.ErrorCategoryInternal
	}
}
