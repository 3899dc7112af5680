package handler

import (
	"net/http"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/health"
	"github.com/sandeepkv93/checkin-gateway/internal/http/response"
)

type HealthHandler struct {
	cfg    config.Config
	probes *health.ProbeRunner
}

func NewHealthHandler(cfg config.Config, probes *health.ProbeRunner) *HealthHandler {
	return &HealthHandler{cfg: cfg, probes: probes}
}

// Health reports the configuration checks plus dependency probes.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := h.cfg.Diagnose()
	healthy := true
	for _, c := range checks {
		if !c.Passed() {
			healthy = false
		}
	}
	var probes []health.CheckResult
	if h.probes != nil {
		var ready bool
		ready, probes = h.probes.Ready(r.Context())
		healthy = healthy && ready
	}

	payload := map[string]any{
		"environment": h.cfg.Env,
		"checks":      checks,
		"probes":      probes,
	}
	if healthy {
		payload["status"] = "healthy"
		response.JSON(w, r, http.StatusOK, payload)
		return
	}
	payload["status"] = "unhealthy"
	response.Error(w, r, http.StatusServiceUnavailable, "UNHEALTHY", "one or more health checks failed", payload)
}

// Config exposes the values the browser needs to render the map and call
// the API.
func (h *HealthHandler) Config(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]any{
		"apiEndpoints": map[string]string{
			"submitLocation": "/api/submit-location",
			"refreshToken":   "/api/refresh-token",
			"geocode":        "/api/geocode",
		},
		"map": map[string]string{
			"amapKey":          h.cfg.AMapKey,
			"amapSecurityCode": h.cfg.AMapSecurityCode,
		},
	})
}
