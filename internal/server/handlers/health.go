package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lumenchat/governor/internal/httperr"
	"github.com/lumenchat/governor/internal/server/middleware"
)

// Checker is a health-checkable component.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the readiness payload. Breaker states and the degraded
// flag are operator signals, not gating conditions: a gateway running on the
// fallback counter store is degraded but still serving.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Breakers  map[string]string `json:"breakers,omitempty"`
	Degraded  bool              `json:"degraded,omitempty"`
}

// Health serves the liveness and readiness endpoints.
type Health struct {
	version  string
	checkers map[string]Checker
	breakers func() map[string]string
	degraded func() bool
}

// NewHealth creates a health handler reporting the given build version.
func NewHealth(version string) *Health {
	return &Health{
		version:  version,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds a named readiness check.
func (h *Health) RegisterChecker(name string, checker Checker) {
	h.checkers[name] = checker
}

// SetBreakerStates wires the breaker registry snapshot into readiness output.
func (h *Health) SetBreakerStates(states func() map[string]string) {
	h.breakers = states
}

// SetDegraded wires the counter-store degraded flag into readiness output.
func (h *Health) SetDegraded(degraded func() bool) {
	h.degraded = degraded
}

// Liveness reports that the process is up. No dependency checks: a dead
// redis must not get the pod restarted.
func (h *Health) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness runs every registered check with a bounded deadline and reports
// 503 when any fails.
func (h *Health) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for name, checker := range h.checkers {
		if err := checker.CheckHealth(ctx); err != nil {
			checks[name] = "unhealthy"
			healthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers()
	}
	if h.degraded != nil {
		resp.Degraded = h.degraded()
	}

	if !healthy {
		resp.Status = "unhealthy"
		httperr.Respond(w, http.StatusServiceUnavailable,
			httperr.Unavailable("readiness check failed"),
			middleware.GetRequestID(r.Context()))
		return
	}
	if resp.Degraded {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
