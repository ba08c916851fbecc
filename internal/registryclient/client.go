// Package registryclient is the shared HTTP client Routers and
// Supervisors use to talk to the Registry: registration, heartbeats,
// deregistration, and filtered listing, each wrapped by a circuit
// breaker so a Registry outage degrades call sites gracefully instead
// of piling up blocked goroutines.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/inferfleet/internal/circuitbreaker"
)

// DefaultTimeout is the client's default per-request HTTP timeout.
const DefaultTimeout = 10 * time.Second

// Client calls the Registry's HTTP API on behalf of a Router or
// Supervisor.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

// Config holds configuration for a registry Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a Client targeting cfg.BaseURL.
func New(cfg *Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	cbConfig := &circuitbreaker.Config{
		FailureThreshold:    5,
		SuccessThreshold:    3,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 3,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		circuitBreaker: circuitbreaker.New("registry-client", cbConfig, logger),
		logger:         logger,
	}
}

// APIError represents an error envelope returned by the Registry.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 APIError.
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// Service mirrors the registry's wire record, kept independent of the
// Registry package's internal type so this client has no compile-time
// dependency on the Registry's implementation.
type Service struct {
	Name          string                 `json:"name"`
	Host          string                 `json:"host"`
	Port          int                    `json:"port"`
	URL           string                 `json:"url"`
	Hostname      string                 `json:"hostname"`
	Status        string                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp,omitempty"`
	LastHeartbeat time.Time              `json:"last_heartbeat,omitempty"`
	HealthStatus  string                 `json:"health_status,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	IsHealthy     bool                   `json:"is_healthy"`
}

// Register performs POST /services.
func (c *Client) Register(ctx context.Context, svc Service) (*Service, error) {
	var result Service
	if err := c.request(ctx, http.MethodPost, "/services", svc, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Heartbeat performs POST /services/{name}/heartbeat, optionally
// carrying a new status.
func (c *Client) Heartbeat(ctx context.Context, name string, status *string) error {
	var body interface{}
	if status != nil {
		body = map[string]string{"status": *status}
	}
	return c.request(ctx, http.MethodPost, "/services/"+name+"/heartbeat", body, nil)
}

// Deregister performs DELETE /services/{name}.
func (c *Client) Deregister(ctx context.Context, name string) error {
	return c.request(ctx, http.MethodDelete, "/services/"+name, nil, nil)
}

// listResponse is the GET /services envelope.
type listResponse struct {
	Services []Service `json:"services"`
	Total    int       `json:"total"`
}

// ListHealthy performs GET /services?healthy=true, the call the
// Router's registry-sync task uses to refresh its pool.
func (c *Client) ListHealthy(ctx context.Context) ([]Service, error) {
	var resp listResponse
	if err := c.request(ctx, http.MethodGet, "/services?healthy=true", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

// Get performs GET /services/{name}.
func (c *Client) Get(ctx context.Context, name string) (*Service, error) {
	var svc Service
	if err := c.request(ctx, http.MethodGet, "/services/"+name, nil, &svc); err != nil {
		return nil, err
	}
	return &svc, nil
}

// request performs a circuit-breaker-protected call to the Registry.
func (c *Client) request(ctx context.Context, method, path string, body, result interface{}) error {
	return c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.doRequest(ctx, method, path, body, result)
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("registryclient: marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("registryclient: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registryclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("registryclient: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(respBody)
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("registryclient: parse response: %w", err)
		}
	}
	return nil
}

// CircuitOpen reports whether the circuit breaker is currently open,
// i.e. the Registry is presumed unreachable.
func (c *Client) CircuitOpen() bool {
	return c.circuitBreaker.IsOpen()
}
