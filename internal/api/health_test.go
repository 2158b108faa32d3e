//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/llm"
)

type fakeProber struct {
	health llm.Health
}

func (f *fakeProber) HealthCheck(_ context.Context) llm.Health {
	return f.health
}

func probeHealth(t *testing.T, prober SidecarProber) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := chi.NewRouter()
	NewHealthHandler(prober).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/sidecar/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w, body
}

func TestSidecarHealthHealthy(t *testing.T) {
	w, body := probeHealth(t, &fakeProber{health: llm.Health{Healthy: true, Models: []string{"llama3"}}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", body["status"])
	}
	models, ok := body["models"].([]interface{})
	if !ok || len(models) != 1 || models[0] != "llama3" {
		t.Errorf("expected available models, got %v", body["models"])
	}
}

func TestSidecarHealthUnhealthy(t *testing.T) {
	w, body := probeHealth(t, &fakeProber{})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if body["status"] != "unhealthy" {
		t.Errorf("expected unhealthy status, got %v", body["status"])
	}
}
