package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/config"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string                      `json:"status"`
	Source      string                      `json:"source"`
	Connections *datasource.ConnectionStats `json:"connections,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string                  `json:"status"`
	Version     string                  `json:"version"`
	Service     string                  `json:"service"`
	GoVersion   string                  `json:"go_version"`
	Hostname    string                  `json:"hostname"`
	Environment string                  `json:"environment"`
	Sources     []datasource.SourceInfo `json:"sources"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	stats  datasource.StatsReporter
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. stats may be nil when the
// configured source holds no database pools.
func NewHealthHandler(cfg *config.Config, stats datasource.StatsReporter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, stats: stats, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status: "ok",
		Source: h.cfg.Source.Type,
	}
	if h.stats != nil {
		stats := h.stats.ConnectionStats()
		response.Connections = &stats
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-dq",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Sources:     datasource.RegisteredSources(),
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
