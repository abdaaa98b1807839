package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/services"
)

// PingResponse identifies the running process.
type PingResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Hostname  string `json:"hostname,omitempty"`
	Env       string `json:"env"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	health  services.HealthService
	version string
	env     string
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(health services.HealthService, version, env string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{health: health, version: version, env: env, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health reports backend reachability. A degraded backend answers 503 so load
// balancers stop routing questions here.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, report); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping answers without touching the backend.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	resp := PingResponse{
		Status:    "ok",
		Service:   "sensorql",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Hostname:  hostname,
		Env:       h.env,
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
