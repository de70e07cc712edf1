package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/boldengine/internal/scheduler"
)

const checkTimeout = 2 * time.Second

// TaskReporter reports scheduler task state.
type TaskReporter interface {
	Statuses() []scheduler.Status
}

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler serves the health endpoint.
type HealthHandler struct {
	tasks   TaskReporter
	checks  map[string]Check
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. tasks may be nil.
func NewHealthHandler(tasks TaskReporter, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		tasks:   tasks,
		checks:  checks,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

type healthResponse struct {
	Status       string             `json:"status"`
	Timestamp    string             `json:"timestamp"`
	Uptime       string             `json:"uptime"`
	Dependencies map[string]string  `json:"dependencies,omitempty"`
	Tasks        []scheduler.Status `json:"tasks,omitempty"`
}

// HealthCheck reports liveness, dependency reachability and the last pass of
// each task. It answers 503 when any dependency check fails.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		names := make([]string, 0, len(h.checks))
		for name := range h.checks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp.Dependencies = make(map[string]string, len(names))
		for _, name := range names {
			if err := h.checks[name](ctx); err != nil {
				resp.Status = "degraded"
				resp.Dependencies[name] = "error: " + err.Error()
				h.logger.WarnContext(ctx, "dependency check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	if h.tasks != nil {
		resp.Tasks = h.tasks.Statuses()
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
