package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// connectTimeout bounds the TCP handshake for a single readiness probe.
const connectTimeout = 5 * time.Second

// perAttemptTimeout bounds one whole readiness-probe request (§5).
const perAttemptTimeout = 10 * time.Second

// progressLogInterval controls how often readiness polling logs that
// it is still waiting, so a slow model load doesn't look like a hang.
const progressLogInterval = 15 * time.Second

// modelEntry is one model's full info as the worker's /models endpoint
// reports it (OpenAI list-models shape: {"id": "...", ...}).
type modelEntry map[string]interface{}

// modelsResponse is the worker's /models payload decoded from its real
// OpenAI-compatible wire format — either {"data": [...]} or a bare
// JSON array of model objects — not from the registry metadata keys
// (metadata.models / metadata.models_list) those model IDs are later
// published under.
type modelsResponse struct {
	Models     []string     `json:"-"`
	ModelsList []modelEntry `json:"-"`
}

func (r *modelsResponse) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Data []modelEntry `json:"data"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Data != nil {
		r.ModelsList = wrapped.Data
	} else {
		var bare []modelEntry
		if err := json.Unmarshal(data, &bare); err != nil {
			return fmt.Errorf("unexpected models response format: %w", err)
		}
		r.ModelsList = bare
	}

	ids := make([]string, 0, len(r.ModelsList))
	for _, m := range r.ModelsList {
		if id, ok := m["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	r.Models = ids
	return nil
}

func (r modelsResponse) ids() []string {
	return r.Models
}

var errReadinessBudgetExhausted = errors.New("supervisor: readiness budget exhausted before the worker became ready")

// pollReady polls GET http://{host}:{port}/models with a fresh
// connection on every attempt until it sees HTTP 200 with at least
// one model identifier, or budget elapses.
func pollReady(ctx context.Context, host string, port int, budget time.Duration, logger *zap.Logger) (*modelsResponse, error) {
	deadline := time.Now().Add(budget)
	url := fmt.Sprintf("http://%s:%d/models", host, port)

	lastProgress := time.Now()
	attempt := 0

	for {
		attempt++
		if time.Now().After(deadline) {
			return nil, errReadinessBudgetExhausted
		}

		resp, err := probeOnce(ctx, url)
		if err == nil {
			if resp.StatusCode == http.StatusOK {
				var body modelsResponse
				decodeErr := json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				if decodeErr == nil && len(body.ids()) > 0 {
					return &body, nil
				}
				logger.Warn("worker returned 200 with no parseable model list, retrying", zap.Int("attempt", attempt))
			} else {
				if resp.StatusCode != http.StatusBadGateway && resp.StatusCode != http.StatusServiceUnavailable {
					logger.Warn("worker readiness probe returned unexpected status",
						zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
				}
				resp.Body.Close()
			}
		} else if !isTransientDialError(err) {
			logger.Warn("worker readiness probe failed", zap.Error(err), zap.Int("attempt", attempt))
		}

		if time.Since(lastProgress) >= progressLogInterval {
			logger.Info("still waiting for worker to become ready",
				zap.Int("attempt", attempt), zap.Duration("elapsed", budget-time.Until(deadline)))
			lastProgress = time.Now()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// probeOnce issues one GET with its own transport, so no connection is
// ever reused between readiness attempts.
func probeOnce(ctx context.Context, url string) (*http.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()

	client := &http.Client{
		Timeout: perAttemptTimeout,
		Transport: &http.Transport{
			DisableKeepAlives: true,
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
		},
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func isTransientDialError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
