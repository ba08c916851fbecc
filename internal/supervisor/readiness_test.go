package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testPort(t *testing.T, server *httptest.Server) int {
	t.Helper()
	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return port
}

func TestPollReady_SucceedsImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"id": "m1", "object": "model"}},
		})
	}))
	defer server.Close()

	models, err := pollReady(context.Background(), "127.0.0.1", testPort(t, server), 2*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("pollReady() error = %v", err)
	}
	if len(models.ids()) != 1 || models.ids()[0] != "m1" {
		t.Errorf("models = %+v", models)
	}
}

func TestPollReady_RetriesTransientErrorsThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"id": "m1"}, {"id": "m2"}},
		})
	}))
	defer server.Close()

	models, err := pollReady(context.Background(), "127.0.0.1", testPort(t, server), 5*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("pollReady() error = %v", err)
	}
	if len(models.ids()) != 2 {
		t.Errorf("models = %+v", models)
	}
}

func TestPollReady_BareListResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{{"id": "m1"}})
	}))
	defer server.Close()

	models, err := pollReady(context.Background(), "127.0.0.1", testPort(t, server), 2*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("pollReady() error = %v", err)
	}
	if len(models.ids()) != 1 || models.ids()[0] != "m1" {
		t.Errorf("models = %+v", models)
	}
}

func TestPollReady_BudgetExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := pollReady(context.Background(), "127.0.0.1", testPort(t, server), 600*time.Millisecond, zap.NewNop())
	if err != errReadinessBudgetExhausted {
		t.Errorf("pollReady() error = %v, expected errReadinessBudgetExhausted", err)
	}
}

func TestPollReady_EmptyModelListIsNotReady(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 2 {
			json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]interface{}{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"id": "m1"}},
		})
	}))
	defer server.Close()

	models, err := pollReady(context.Background(), "127.0.0.1", testPort(t, server), 2*time.Second, zap.NewNop())
	if err != nil {
		t.Fatalf("pollReady() error = %v", err)
	}
	if len(models.ids()) != 1 {
		t.Errorf("expected eventual success once the model list is non-empty, got %+v", models)
	}
}
