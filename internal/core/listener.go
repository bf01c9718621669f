package core

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/allaspectsdev/aw-firewall/internal/config"
	"github.com/allaspectsdev/aw-firewall/internal/logging"
	"github.com/allaspectsdev/aw-firewall/internal/provider"
	"github.com/allaspectsdev/aw-firewall/internal/ratelimit"
	"github.com/allaspectsdev/aw-firewall/internal/requestid"
	"github.com/allaspectsdev/aw-firewall/internal/tracing"
)

// NewProviderRouter builds the chi.Router for one provider listener.
// RealIP and a panic-recovering middleware are always installed; the
// tracing middleware is added only when tracing is enabled. The OpenAI
// listener additionally mounts the management endpoints, even when OpenAI
// itself is disabled (the "stub server" case).
func NewProviderRouter(c *Core, top *config.Topology, p provider.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if c.TracingOn {
		r.Use(tracing.HTTPMiddleware(string(p.ID)))
	}

	if p.ID == provider.OpenAI {
		mountManagement(r, c, top)
	} else {
		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "service": p.ServiceName()})
		})
	}

	if !p.Enabled {
		r.NotFound(func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":   "not_found",
				"message": "this provider is not configured",
			})
		})
		return r
	}

	handler := rateLimitMiddleware(c, p)(NewForwarder(c, p))
	r.NotFound(handler.ServeHTTP)
	return r
}

// rateLimitMiddleware runs the limiter ahead of the forwarder using the
// client-declared Content-Length, emitting the 429 schema and headers on
// rejection.
func rateLimitMiddleware(c *Core, p provider.Config) func(http.Handler) http.Handler {
	providerName := string(p.ID)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqBytes := r.ContentLength
			if reqBytes < 0 {
				reqBytes = 0
			}
			decision := c.Limiter.Check(providerName, reqBytes)
			if !decision.Allowed {
				reqID := requestid.Resolve(r.Header.Get("X-Request-ID"))
				c.Registry.RecordRateLimitRejected(providerName, string(decision.LimitType))

				w.Header().Set("Retry-After", strconv.FormatInt(decision.RetryAfter, 10))
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.RetryAfter, 10))
				w.Header().Set("X-Request-ID", reqID)
				writeJSON(w, http.StatusTooManyRequests, ratelimit.RejectBody(providerName, decision))

				c.Logger.Warn("rate_limited", logging.Fields{
					"provider":   providerName,
					"limit_type": string(decision.LimitType),
					"window":     decision.Window,
					"request_id": reqID,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
