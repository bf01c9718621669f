package config

import (
	"fmt"
	"strings"
)

// issues accumulates non-fatal validation problems in an
// accumulate-then-report style: every problem found is recorded, and the
// caller decides how to surface the combined list (here, as startup
// warnings rather than an aborting error) instead of failing on the first
// one found.
type issues []string

func (is *issues) add(format string, args ...any) {
	*is = append(*is, fmt.Sprintf(format, args...))
}

func (is issues) String() string {
	return strings.Join(is, "; ")
}
