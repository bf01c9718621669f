package core

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allaspectsdev/aw-firewall/internal/config"
	"github.com/allaspectsdev/aw-firewall/internal/metrics"
)

// mountManagement registers the OpenAI listener's management endpoints: a
// richer /health than the per-listener one, and /metrics in both JSON and
// (via ?format=prometheus) Prometheus text exposition.
func mountManagement(r chi.Router, c *Core, top *config.Topology) {
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, healthBody(c, top))
	})

	promHandler := metrics.PrometheusHandler(c.Registry)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("format") == "prometheus" {
			promHandler(w, req)
			return
		}
		writeJSON(w, http.StatusOK, c.Registry.GetMetrics())
	})
}

func healthBody(c *Core, top *config.Topology) map[string]any {
	providers := map[string]bool{}
	rateLimits := map[string]any{}

	for id, cfg := range top.Providers {
		providers[string(id)] = cfg.Enabled
		if !cfg.Enabled {
			continue
		}
		snap := c.Limiter.Status(string(id))
		rateLimits[string(id)] = map[string]any{
			"enabled": snap.Enabled,
			"rpm": map[string]any{
				"limit":     snap.RPM.Limit,
				"remaining": snap.RPM.Remaining,
				"reset":     snap.RPM.Reset,
			},
			"rph": map[string]any{
				"limit":     snap.RPH.Limit,
				"remaining": snap.RPH.Remaining,
				"reset":     snap.RPH.Reset,
			},
		}
	}

	return map[string]any{
		"status":          "healthy",
		"service":         "openai",
		"squid_proxy":     top.UpstreamHTTP != "",
		"providers":       providers,
		"metrics_summary": c.Registry.GetSummary(),
		"rate_limits":     rateLimits,
	}
}
