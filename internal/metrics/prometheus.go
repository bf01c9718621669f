package metrics

import (
	"fmt"
	"net/http"
	"strings"
)

// metricLabelNames maps each required metric name to the ordered label
// names its colon-joined label key encodes, so the Prometheus exposition
// view can reconstruct name="value" pairs from the internal label-tuple key.
var metricLabelNames = map[string][]string{
	metricRequestsTotal:     {"provider", "method", "status_class"},
	metricRequestsErrors:    {"provider"},
	metricRequestBytes:      {"provider"},
	metricResponseBytes:     {"provider"},
	metricRateLimitRejected: {"provider", "limit_type"},
	metricRequestDurationMs: {"provider"},
	metricActiveRequests:    {"provider"},
}

// PrometheusHandler returns an http.HandlerFunc that writes the registry in
// Prometheus text exposition format (version 0.0.4), without depending on
// prometheus/client_golang — the format is written by hand, matching the
// level of dependency the rest of this stack carries for metrics export.
func PrometheusHandler(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := reg.GetMetrics()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		for name, series := range snap.Counters {
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			for key, v := range series {
				fmt.Fprintf(w, "%s%s %d\n", name, formatLabelKey(name, key), v)
			}
		}

		for name, series := range snap.Gauges {
			fmt.Fprintf(w, "# TYPE %s gauge\n", name)
			for key, v := range series {
				fmt.Fprintf(w, "%s%s %d\n", name, formatLabelKey(name, key), v)
			}
		}
		fmt.Fprintf(w, "# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %g\n", snap.Uptime)

		for name, series := range snap.Histograms {
			fmt.Fprintf(w, "# TYPE %s histogram\n", name)
			for key, h := range series {
				base := formatLabelKey(name, key)
				for i, bound := range bucketBounds {
					fmt.Fprintf(w, "%s_bucket%s %d\n", name, withLe(base, fmt.Sprintf("%g", bound)), int64(h.Buckets[i]))
				}
				fmt.Fprintf(w, "%s_bucket%s %d\n", name, withLe(base, "+Inf"), int64(h.Buckets[len(h.Buckets)-1]))
				fmt.Fprintf(w, "%s_sum%s %g\n", name, base, h.Sum)
				fmt.Fprintf(w, "%s_count%s %d\n", name, base, h.Count)
			}
		}
	}
}

// formatLabelKey reconstructs a Prometheus label block from the internal
// colon-joined label key, using the known label names for the metric.
func formatLabelKey(metricName, key string) string {
	if key == "_" {
		return ""
	}
	names := metricLabelNames[metricName]
	values := strings.Split(key, ":")
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		name := fmt.Sprintf("label%d", i)
		if i < len(names) {
			name = names[i]
		}
		fmt.Fprintf(&b, "%s=%q", name, v)
	}
	b.WriteByte('}')
	return b.String()
}

// withLe inserts a le="bound" label into an already-formatted label block
// (or creates one if base is empty).
func withLe(base, bound string) string {
	if base == "" {
		return fmt.Sprintf("{le=%q}", bound)
	}
	return base[:len(base)-1] + fmt.Sprintf(",le=%q}", bound)
}
