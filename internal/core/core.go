// Package core wires the sidecar's shared dependencies — metrics registry,
// rate limiter, logger, and upstream HTTP client — into a single value
// threaded by pointer to every listener and request handler, rather than
// exposed as package-level singletons.
package core

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/allaspectsdev/aw-firewall/internal/logging"
	"github.com/allaspectsdev/aw-firewall/internal/metrics"
	"github.com/allaspectsdev/aw-firewall/internal/ratelimit"
)

// Core bundles the process-wide dependencies the request path needs. It is
// built once at startup and never replaced afterward; its fields are each
// individually safe for concurrent use.
type Core struct {
	Registry  *metrics.Registry
	Limiter   *ratelimit.Limiter
	Logger    *logging.Logger
	Upstream  *http.Client
	TracingOn bool
}

// New builds a Core with a pooled upstream HTTPS client tuned for
// high-concurrency connection reuse. proxyURL, when non-empty,
// is used for every outbound request (CONNECT-tunnelled for HTTPS);
// otherwise the transport falls back to http.ProxyFromEnvironment so
// HTTP_PROXY/HTTPS_PROXY are still honored if set after process start via
// the environment the transport reads lazily.
func New(logger *logging.Logger, limiter *ratelimit.Limiter, tracingOn bool, proxyURL string) (*Core, error) {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing upstream proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Core{
		Registry:  metrics.NewRegistry(),
		Limiter:   limiter,
		Logger:    logger,
		Upstream:  &http.Client{Transport: transport},
		TracingOn: tracingOn,
	}, nil
}
