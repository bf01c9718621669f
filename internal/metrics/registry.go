// Package metrics implements the in-process counter/gauge/histogram
// registry that backs the sidecar's /health summary and /metrics endpoints.
// The registry is a plain value owned by Core (internal/core), not a
// package-level singleton: every write goes through a mutex-protected map,
// following the shape of a classic Prometheus client registry without
// depending on prometheus/client_golang.
package metrics

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// bucketBounds are the fixed histogram bucket upper bounds, in milliseconds.
// The +Inf bucket is implicit: every histogram carries len(bucketBounds)+1 counts.
var bucketBounds = []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}

type histogram struct {
	counts []uint64 // cumulative: counts[i] = observations <= bucketBounds[i]; counts[last] = +Inf
	sum    float64
	count  uint64
}

func newHistogram() *histogram {
	return &histogram{counts: make([]uint64, len(bucketBounds)+1)}
}

func (h *histogram) observe(v float64) {
	for i, bound := range bucketBounds {
		if v <= bound {
			h.counts[i]++
		}
	}
	h.counts[len(bucketBounds)]++ // +Inf
	h.sum += v
	h.count++
}

// HistogramSnapshot is the deep-copied view returned by GetMetrics.
type HistogramSnapshot struct {
	P50     float64   `json:"p50"`
	P90     float64   `json:"p90"`
	P99     float64   `json:"p99"`
	Count   uint64    `json:"count"`
	Sum     float64   `json:"sum"`
	Buckets []float64 `json:"buckets"`
}

func (h *histogram) snapshot() HistogramSnapshot {
	buckets := make([]float64, len(h.counts))
	for i, c := range h.counts {
		buckets[i] = float64(c)
	}
	return HistogramSnapshot{
		P50:     percentile(h, 0.50),
		P90:     percentile(h, 0.90),
		P99:     percentile(h, 0.99),
		Count:   h.count,
		Sum:     h.sum,
		Buckets: buckets,
	}
}

// percentile returns the linear-interpolated p-quantile (p in (0,1)) of h.
// Returns 0 when the histogram has no observations.
func percentile(h *histogram, p float64) float64 {
	if h == nil || h.count == 0 {
		return 0
	}
	target := p * float64(h.count)
	prevUpper := 0.0
	var prevCount uint64
	for i, bound := range bucketBounds {
		cum := h.counts[i]
		if float64(cum) >= target {
			bucketCount := cum - prevCount
			if bucketCount == 0 {
				return bound
			}
			fraction := (target - float64(prevCount)) / float64(bucketCount)
			return prevUpper + fraction*(bound-prevUpper)
		}
		prevUpper = bound
		prevCount = cum
	}
	return bucketBounds[len(bucketBounds)-1]
}

// labelsKey serializes an ordered label-value tuple as a colon-joined
// string; an empty tuple serializes to the literal "_".
func labelsKey(labels ...string) string {
	if len(labels) == 0 {
		return "_"
	}
	return strings.Join(labels, ":")
}

// statusClass maps an HTTP status code to its "Nxx" class string.
func statusClass(code int) string {
	class := code / 100
	if class < 1 {
		class = 1
	}
	if class > 5 {
		class = 5
	}
	return strconv.Itoa(class) + "xx"
}

// Registry is the process-wide metrics store. All methods are safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]map[string]uint64
	gauges     map[string]map[string]int64
	histograms map[string]map[string]*histogram
	startedAt  time.Time
}

// NewRegistry constructs an empty Registry. uptime_seconds in GetMetrics
// and GetSummary is measured from this call.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]map[string]uint64),
		gauges:     make(map[string]map[string]int64),
		histograms: make(map[string]map[string]*histogram),
		startedAt:  time.Now(),
	}
}

// Increment adds delta (default meaning is 1, callers pass explicitly) to
// the named counter under the given label tuple.
func (r *Registry) Increment(name string, delta uint64, labels ...string) {
	key := labelsKey(labels...)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.counters[name]
	if !ok {
		m = make(map[string]uint64)
		r.counters[name] = m
	}
	m[key] += delta
}

// GaugeInc increments a gauge by delta (may be negative).
func (r *Registry) GaugeInc(name string, delta int64, labels ...string) {
	key := labelsKey(labels...)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.gauges[name]
	if !ok {
		m = make(map[string]int64)
		r.gauges[name] = m
	}
	m[key] += delta
}

// GaugeDec decrements a gauge by delta.
func (r *Registry) GaugeDec(name string, delta int64, labels ...string) {
	r.GaugeInc(name, -delta, labels...)
}

// GaugeSet sets a gauge to an exact value.
func (r *Registry) GaugeSet(name string, value int64, labels ...string) {
	key := labelsKey(labels...)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.gauges[name]
	if !ok {
		m = make(map[string]int64)
		r.gauges[name] = m
	}
	m[key] = value
}

// Observe records value into the named histogram under the given label tuple.
func (r *Registry) Observe(name string, value float64, labels ...string) {
	key := labelsKey(labels...)
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.histograms[name]
	if !ok {
		m = make(map[string]*histogram)
		r.histograms[name] = m
	}
	h, ok := m[key]
	if !ok {
		h = newHistogram()
		m[key] = h
	}
	h.observe(value)
}

// -- Domain-specific convenience wrappers for the sidecar's metric set --

const (
	metricRequestsTotal     = "requests_total"
	metricRequestsErrors    = "requests_errors_total"
	metricRequestBytes      = "request_bytes_total"
	metricResponseBytes     = "response_bytes_total"
	metricRateLimitRejected = "rate_limit_rejected_total"
	metricRequestDurationMs = "request_duration_ms"
	metricActiveRequests    = "active_requests"
	metricTokensTotal       = "tokens_total"
)

// RecordRequest increments requests_total{provider,method,status_class}.
func (r *Registry) RecordRequest(provider, method string, statusCode int) {
	r.Increment(metricRequestsTotal, 1, provider, method, statusClass(statusCode))
}

// RecordError increments requests_errors_total{provider}.
func (r *Registry) RecordError(provider string) {
	r.Increment(metricRequestsErrors, 1, provider)
}

// AddRequestBytes adds n to request_bytes_total{provider}.
func (r *Registry) AddRequestBytes(provider string, n uint64) {
	r.Increment(metricRequestBytes, n, provider)
}

// AddResponseBytes adds n to response_bytes_total{provider}.
func (r *Registry) AddResponseBytes(provider string, n uint64) {
	r.Increment(metricResponseBytes, n, provider)
}

// RecordRateLimitRejected increments rate_limit_rejected_total{provider,limit_type}.
func (r *Registry) RecordRateLimitRejected(provider, limitType string) {
	r.Increment(metricRateLimitRejected, 1, provider, limitType)
}

// ObserveRequestDuration records ms into request_duration_ms{provider}.
func (r *Registry) ObserveRequestDuration(provider string, ms float64) {
	r.Observe(metricRequestDurationMs, ms, provider)
}

// IncActiveRequests increments active_requests{provider}.
func (r *Registry) IncActiveRequests(provider string) {
	r.GaugeInc(metricActiveRequests, 1, provider)
}

// DecActiveRequests decrements active_requests{provider}.
func (r *Registry) DecActiveRequests(provider string) {
	r.GaugeDec(metricActiveRequests, 1, provider)
}

// AddTokens adds input/output/total token counts observed from one response
// into tokens_total{provider,kind}. Skipped (zero) extractions still call
// this with all-zero counts, which is a harmless no-op increment.
func (r *Registry) AddTokens(provider string, input, output, total uint64) {
	r.Increment(metricTokensTotal, input, provider, "input")
	r.Increment(metricTokensTotal, output, provider, "output")
	r.Increment(metricTokensTotal, total, provider, "total")
}

// Snapshot is the deep-copied view returned by GetMetrics, matching the
// /metrics JSON schema. Gauges and Uptime are plain Go fields for callers
// like the Prometheus exposition handler; MarshalJSON folds Uptime into
// the gauges object as the synthetic "uptime_seconds" entry, per §6's
// gauges:{<name>:{...}, uptime_seconds:n} shape.
type Snapshot struct {
	Counters   map[string]map[string]uint64
	Histograms map[string]map[string]HistogramSnapshot
	Gauges     map[string]map[string]int64
	Uptime     float64
}

// MarshalJSON emits uptime_seconds as a sibling key inside the gauges
// object rather than a top-level field, matching the documented /metrics
// schema exactly.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	gauges := make(map[string]any, len(s.Gauges)+1)
	for name, labels := range s.Gauges {
		gauges[name] = labels
	}
	gauges["uptime_seconds"] = s.Uptime

	return json.Marshal(struct {
		Counters   map[string]map[string]uint64            `json:"counters"`
		Histograms map[string]map[string]HistogramSnapshot `json:"histograms"`
		Gauges     map[string]any                          `json:"gauges"`
	}{
		Counters:   s.Counters,
		Histograms: s.Histograms,
		Gauges:     gauges,
	})
}

// GetMetrics returns a deep snapshot safe to serialize or mutate independently
// of the live registry.
func (r *Registry) GetMetrics() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counters := make(map[string]map[string]uint64, len(r.counters))
	for name, labels := range r.counters {
		cp := make(map[string]uint64, len(labels))
		for k, v := range labels {
			cp[k] = v
		}
		counters[name] = cp
	}

	histograms := make(map[string]map[string]HistogramSnapshot, len(r.histograms))
	for name, labels := range r.histograms {
		cp := make(map[string]HistogramSnapshot, len(labels))
		for k, h := range labels {
			cp[k] = h.snapshot()
		}
		histograms[name] = cp
	}

	gauges := make(map[string]map[string]int64, len(r.gauges))
	for name, labels := range r.gauges {
		cp := make(map[string]int64, len(labels))
		for k, v := range labels {
			cp[k] = v
		}
		gauges[name] = cp
	}

	return Snapshot{
		Counters:   counters,
		Histograms: histograms,
		Gauges:     gauges,
		Uptime:     time.Since(r.startedAt).Seconds(),
	}
}

// Summary is the aggregated view served under /health.
type Summary struct {
	TotalRequests  uint64  `json:"total_requests"`
	TotalErrors    uint64  `json:"total_errors"`
	ActiveRequests int64   `json:"active_requests"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
}

// GetSummary aggregates the required counters/gauges/histogram across all
// providers for the /health response.
func (r *Registry) GetSummary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Summary
	for _, v := range r.counters[metricRequestsTotal] {
		s.TotalRequests += v
	}
	for _, v := range r.counters[metricRequestsErrors] {
		s.TotalErrors += v
	}
	for _, v := range r.gauges[metricActiveRequests] {
		s.ActiveRequests += v
	}

	var sum, count float64
	for _, h := range r.histograms[metricRequestDurationMs] {
		sum += h.sum
		count += float64(h.count)
	}
	if count > 0 {
		s.AvgLatencyMs = sum / count
	}
	return s
}

// StatusClass is exported for handlers that need to classify a status code
// without recording it (e.g. choosing the rate-limit response's own class).
func StatusClass(code int) string { return statusClass(code) }

func init() {
	if !sort.Float64sAreSorted(bucketBounds) {
		panic("metrics: bucketBounds must be ascending")
	}
}
