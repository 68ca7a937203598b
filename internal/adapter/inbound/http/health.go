package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/refresh"
	"github.com/vectorbound/boundaryplane/internal/domain/telemetry"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// HealthChecker verifies component health.
type HealthChecker struct {
	recorder  *telemetry.Recorder
	scheduler *refresh.Scheduler
	version   string
}

// NewHealthChecker creates a HealthChecker with optional components. Pass
// nil for components that aren't available.
func NewHealthChecker(recorder *telemetry.Recorder, scheduler *refresh.Scheduler, version string) *HealthChecker {
	return &HealthChecker{recorder: recorder, scheduler: scheduler, version: version}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.recorder != nil {
		drops := h.recorder.DropCount()
		if drops > 0 {
			checks["telemetry"] = fmt.Sprintf("degraded: %d records dropped", drops)
			healthy = false
		} else {
			checks["telemetry"] = fmt.Sprintf("ok: segment %d", h.recorder.CurrentSegment())
		}
	} else {
		checks["telemetry"] = "not configured"
	}

	if h.scheduler != nil {
		last := h.scheduler.LastRefresh()
		if last.IsZero() {
			checks["refresh"] = "pending: no refresh yet"
		} else {
			checks["refresh"] = fmt.Sprintf("ok: last refresh %s ago", time.Since(last).Round(time.Second))
		}
	} else {
		checks["refresh"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{Status: status, Checks: checks, Version: h.version}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
