package handler

import (
	"net/http"
	"time"

	"authcore/internal/container"
)

// HealthHandler serves liveness and dependency checks
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(c *container.Container) *HealthHandler {
	return &HealthHandler{container: c}
}

// Check reports service health including Redis and database reachability
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if client := h.container.GetRedisClient(); client != nil {
		if err := client.Health(r.Context()); err != nil {
			checks["redis"] = "unhealthy"
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	if db := h.container.GetDatabase(); db != nil {
		if err := db.Health(r.Context()); err != nil {
			checks["database"] = "unhealthy"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    map[bool]string{true: "ok", false: "degraded"}[healthy],
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
