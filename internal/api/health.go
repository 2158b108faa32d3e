package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/llm"
)

// SidecarProber reports sidecar availability. *llm.Client satisfies it.
type SidecarProber interface {
	HealthCheck(ctx context.Context) llm.Health
}

// HealthHandler proxies sidecar health to callers.
type HealthHandler struct {
	prober SidecarProber
}

// NewHealthHandler creates a sidecar health handler.
func NewHealthHandler(prober SidecarProber) *HealthHandler {
	return &HealthHandler{prober: prober}
}

// RegisterRoutes registers the sidecar health route.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sidecar/health", h.SidecarHealth)
}

// SidecarHealth probes the sidecar and reports the available models.
// 200 when healthy, 503 otherwise.
func (h *HealthHandler) SidecarHealth(w http.ResponseWriter, r *http.Request) {
	health := h.prober.HealthCheck(r.Context())
	if !health.Healthy {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"models": []string{},
		})
		return
	}

	models := health.Models
	if models == nil {
		models = []string{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"models": models,
	})
}
