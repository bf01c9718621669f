// Package headers implements the stateless inbound-header filtering policy:
// the sidecar is the sole injector of upstream authentication, so any
// client-supplied credential or proxy header must be stripped before forwarding.
package headers

import (
	"net/http"
	"strings"
)

var stripExact = map[string]struct{}{
	"host":                {},
	"authorization":       {},
	"proxy-authorization": {},
	"x-api-key":           {},
	"forwarded":           {},
	"via":                 {},
}

const stripPrefix = "x-forwarded-"

// Strip reports whether the given header name (any case) must be removed
// before the request is forwarded upstream.
func Strip(name string) bool {
	lower := strings.ToLower(name)
	if _, ok := stripExact[lower]; ok {
		return true
	}
	return strings.HasPrefix(lower, stripPrefix)
}

// Filter returns a copy of src with every header that Strip flags removed.
func Filter(src http.Header) http.Header {
	out := make(http.Header, len(src))
	for name, values := range src {
		if Strip(name) {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}
