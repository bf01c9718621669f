package core

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/allaspectsdev/aw-firewall/internal/headers"
	"github.com/allaspectsdev/aw-firewall/internal/logging"
	"github.com/allaspectsdev/aw-firewall/internal/provider"
	"github.com/allaspectsdev/aw-firewall/internal/requestid"
	"github.com/allaspectsdev/aw-firewall/internal/sanitize"
	"github.com/allaspectsdev/aw-firewall/internal/tokenusage"
	"github.com/allaspectsdev/aw-firewall/internal/tracing"
)

// maxBodyBytes is the hard request-body cap enforced before any byte is
// forwarded upstream.
const maxBodyBytes = 10 << 20

// Forwarder implements the per-request provider pipeline: request-id
// resolution, path/body validation, header scrubbing plus credential
// injection, the upstream HTTPS call, and response streaming with optional
// token-usage extraction. It is stateless across requests.
type Forwarder struct {
	Core     *Core
	Provider provider.Config
}

// NewForwarder builds a Forwarder for one provider.
func NewForwarder(c *Core, p provider.Config) *Forwarder {
	return &Forwarder{Core: c, Provider: p}
}

func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	providerName := string(f.Provider.ID)
	c := f.Core

	reqID := requestid.Resolve(r.Header.Get("X-Request-ID"))
	w.Header().Set("X-Request-ID", reqID)

	c.Registry.IncActiveRequests(providerName)
	c.Logger.Info("request_start", logging.Fields{
		"provider":   providerName,
		"method":     r.Method,
		"path":       sanitize.Default(r.URL.Path),
		"request_id": reqID,
	})

	// failValidation handles the step-3/4 rejections (leading-slash path
	// check, body-size cap): these count toward requests_total's 4xx
	// bucket and log request_complete, but are not upstream/stream errors,
	// so they never touch requests_errors_total.
	failValidation := func(status int, errType, message string) {
		c.Registry.DecActiveRequests(providerName)
		c.Registry.RecordRequest(providerName, r.Method, status)
		writeJSONError(w, status, errType, message, reqID)
		c.Logger.Info("request_complete", logging.Fields{
			"provider":    providerName,
			"method":      r.Method,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  reqID,
		})
	}

	// failError handles the step-8 error paths (client stream error,
	// upstream connection error): these record requests_errors_total in
	// addition to requests_total, alongside a request_error log line.
	failError := func(status int, errType, message string) {
		c.Registry.DecActiveRequests(providerName)
		c.Registry.RecordRequest(providerName, r.Method, status)
		c.Registry.RecordError(providerName)
		writeJSONError(w, status, errType, message, reqID)
		c.Logger.Info("request_complete", logging.Fields{
			"provider":    providerName,
			"method":      r.Method,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  reqID,
		})
	}

	if !strings.HasPrefix(r.URL.Path, "/") {
		failValidation(http.StatusBadRequest, "invalid_request", "request path must begin with /")
		return
	}

	if r.ContentLength > maxBodyBytes {
		failValidation(http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds the 10 MiB limit")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		c.Logger.Error("request_error", logging.Fields{
			"provider":   providerName,
			"request_id": reqID,
			"error":      sanitize.Default(err.Error()),
		})
		failError(http.StatusBadRequest, "bad_request", "error reading request body")
		return
	}
	if len(body) > maxBodyBytes {
		failValidation(http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds the 10 MiB limit")
		return
	}

	outHeader := headers.Filter(r.Header)
	outHeader.Set("x-request-id", reqID)
	f.Provider.Inject(outHeader)

	upstreamURL := url.URL{
		Scheme:   "https",
		Host:     f.Provider.UpstreamHost,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	ctx := r.Context()
	var span trace.Span
	if c.TracingOn {
		ctx, span = tracing.StartUpstreamSpan(ctx, upstreamURL.String(), providerName)
		tracing.SetRequestAttributes(ctx, reqID, r.Method, r.URL.Path, providerName)
	}

	upReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), bytes.NewReader(body))
	if err != nil {
		if span != nil {
			span.End()
		}
		c.Logger.Error("request_error", logging.Fields{
			"provider":   providerName,
			"request_id": reqID,
			"error":      sanitize.Default(err.Error()),
		})
		failError(http.StatusBadGateway, "upstream_error", "error building upstream request")
		return
	}
	upReq.Header = outHeader
	if c.TracingOn {
		tracing.InjectHeaders(ctx, upReq)
	}

	upResp, err := c.Upstream.Do(upReq)
	if err != nil {
		if c.TracingOn {
			tracing.RecordError(ctx, err)
			span.End()
		}
		c.Logger.Error("request_error", logging.Fields{
			"provider":   providerName,
			"request_id": reqID,
			"error":      sanitize.Default(err.Error()),
		})
		failError(http.StatusBadGateway, "upstream_error", "error contacting upstream")
		return
	}
	defer upResp.Body.Close()

	for name, values := range upResp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(upResp.StatusCode)

	extractor := tokenusage.New(w, upResp.Header.Get("Content-Type"), upResp.Header.Get("Content-Encoding"))
	responseBytes, copyErr := io.Copy(extractor, upResp.Body)
	counts := extractor.Finish()

	if c.TracingOn {
		tracing.SetResponseAttributes(ctx, upResp.StatusCode, int64(len(body)), responseBytes, providerName)
		span.End()
	}

	c.Registry.DecActiveRequests(providerName)
	c.Registry.RecordRequest(providerName, r.Method, upResp.StatusCode)
	c.Registry.AddRequestBytes(providerName, uint64(len(body)))
	c.Registry.AddResponseBytes(providerName, uint64(responseBytes))
	c.Registry.ObserveRequestDuration(providerName, float64(time.Since(start).Milliseconds()))
	c.Registry.AddTokens(providerName, counts.Input, counts.Output, counts.Total)
	if counts != (tokenusage.Counts{}) {
		c.Logger.Info("tokens", logging.Fields{
			"provider":   providerName,
			"request_id": reqID,
			"input":      counts.Input,
			"output":     counts.Output,
			"total":      counts.Total,
		})
	}

	if copyErr != nil {
		// Headers and a partial body are already on the wire: the HTTP
		// framing does not allow retracting the status line, so the best
		// this path can do is record the failure and stop writing.
		c.Registry.RecordError(providerName)
		c.Logger.Error("request_error", logging.Fields{
			"provider":   providerName,
			"request_id": reqID,
			"error":      sanitize.Default(copyErr.Error()),
		})
		return
	}

	c.Logger.Info("request_complete", logging.Fields{
		"provider":       providerName,
		"method":         r.Method,
		"status":         upResp.StatusCode,
		"duration_ms":    time.Since(start).Milliseconds(),
		"request_bytes":  len(body),
		"response_bytes": responseBytes,
		"upstream_host":  f.Provider.UpstreamHost,
		"request_id":     reqID,
	})
}

func writeJSONError(w http.ResponseWriter, status int, errType, message, reqID string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{"error": errType, "message": sanitize.Default(message)})
	w.Write(body)
}
