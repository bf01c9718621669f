// Package requestid generates and validates the per-request trace identifier
// propagated as the X-Request-ID header.
package requestid

import (
	"regexp"

	"github.com/google/uuid"
)

var validPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Generate returns a fresh UUID-v4 string.
func Generate() string {
	return uuid.New().String()
}

// Valid reports whether s is an acceptable client-supplied request id:
// 1 to 128 characters drawn from [A-Za-z0-9_.-].
func Valid(s string) bool {
	return validPattern.MatchString(s)
}

// Resolve returns candidate unchanged if Valid, otherwise a freshly generated id.
func Resolve(candidate string) string {
	if Valid(candidate) {
		return candidate
	}
	return Generate()
}
