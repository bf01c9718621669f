// Package tokenusage implements the byte-transparent token-usage extractor:
// a tee stage that forwards upstream response bytes to the client unmodified
// while a side-channel parser recovers {input, output, total} token counts
// from the same bytes, in either buffered-JSON or Server-Sent-Events mode.
package tokenusage

import "strings"

// Counts is the per-response token usage recovered from an upstream body.
type Counts struct {
	Input  uint64 `json:"input"`
	Output uint64 `json:"output"`
	Total  uint64 `json:"total"`
}

// Mode selects how response bytes are parsed for usage.
type Mode int

const (
	// ModeSkip disables extraction (e.g. the body is compressed).
	ModeSkip Mode = iota
	// ModeJSON accumulates the full body and parses it once at stream end.
	ModeJSON
	// ModeSSE incrementally parses Server-Sent-Events frames.
	ModeSSE
)

// DetermineMode selects the parser mode from the response's Content-Type and
// Content-Encoding headers. Extraction is skipped whenever the body is
// compressed, since the extractor never decompresses.
func DetermineMode(contentType, contentEncoding string) Mode {
	enc := strings.ToLower(strings.TrimSpace(contentEncoding))
	switch enc {
	case "gzip", "br", "deflate":
		return ModeSkip
	}
	if strings.Contains(strings.ToLower(contentType), "text/event-stream") {
		return ModeSSE
	}
	return ModeJSON
}
