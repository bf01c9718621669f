package tokenusage

import (
	"bytes"
	"io"
)

// Extractor wraps a destination io.Writer (the client's response body
// writer) so that every Write is forwarded immediately and verbatim, while
// a side-channel parser accumulates token usage in parallel. Call Finish
// once the upstream body has been fully copied to recover the counts.
//
// The parser never alters the forwarding path: each chunk is written to
// the destination before the parser sees it, and parsing runs in the same
// Write call without affecting the byte count or error Write returns.
type Extractor struct {
	dst     io.Writer
	mode    Mode
	jsonBuf bytes.Buffer
	sse     sseAccumulator
}

// New builds an Extractor over dst selecting its mode from the response's
// Content-Type/Content-Encoding headers.
func New(dst io.Writer, contentType, contentEncoding string) *Extractor {
	return &Extractor{dst: dst, mode: DetermineMode(contentType, contentEncoding)}
}

// Write forwards p to the destination writer unchanged, then — unless the
// extractor is in ModeSkip — feeds a copy of p to the side-channel parser.
func (e *Extractor) Write(p []byte) (int, error) {
	n, err := e.dst.Write(p)
	if err != nil {
		return n, err
	}
	switch e.mode {
	case ModeJSON:
		e.jsonBuf.Write(p)
	case ModeSSE:
		e.sse.feed(p)
	}
	return n, nil
}

// Finish returns the accumulated token counts. Safe to call exactly once,
// after the last Write.
func (e *Extractor) Finish() Counts {
	switch e.mode {
	case ModeJSON:
		return parseBufferedJSON(e.jsonBuf.Bytes())
	case ModeSSE:
		return e.sse.finish()
	default:
		return Counts{}
	}
}
