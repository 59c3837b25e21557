package gateway

import (
	"net/http"
	"time"

	"github.com/flemzord/recall/internal/facade"
	"github.com/flemzord/recall/internal/provider"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status    string                  `json:"status"` // "ok", "degraded" or "unavailable"
	Items     int                     `json:"items"`
	IndexSize int                     `json:"index_size"`
	Providers []provider.HealthStatus `json:"providers,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	Uptime    int64                   `json:"uptime_seconds"`
	Memory    facade.Stats            `json:"memory"`
	Providers []provider.HealthStatus `json:"providers,omitempty"`
}

// handleHealth reports 503 when the store cannot be read. Unhealthy
// providers only degrade the status: answers fall back to local paths.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}

	stats, err := g.memory.Stats(r.Context())
	if err != nil {
		g.logger.Warn("health check failed", "error", err)
		resp.Status = "unavailable"
		resp.Error = "store unavailable"
		w.Header().Set("Retry-After", retryAfter)
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Items = stats.Items
	resp.IndexSize = stats.IndexSize

	if g.chain != nil {
		resp.Providers = g.chain.HealthReport()
		for _, p := range resp.Providers {
			if p.State != "healthy" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := g.memory.Stats(r.Context())
	if err != nil {
		g.fail(w, r, err)
		return
	}
	resp := StatusResponse{
		Uptime: int64(time.Since(g.startedAt).Seconds()),
		Memory: stats,
	}
	if g.chain != nil {
		resp.Providers = g.chain.HealthReport()
	}
	writeJSON(w, http.StatusOK, resp)
}
