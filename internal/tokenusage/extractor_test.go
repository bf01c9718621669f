package tokenusage

import (
	"bytes"
	"testing"
)

func TestDetermineModeSkipsCompressed(t *testing.T) {
	if m := DetermineMode("application/json", "gzip"); m != ModeSkip {
		t.Fatalf("mode = %v, want ModeSkip", m)
	}
	if m := DetermineMode("application/json", "br"); m != ModeSkip {
		t.Fatalf("mode = %v, want ModeSkip", m)
	}
	if m := DetermineMode("application/json", "deflate"); m != ModeSkip {
		t.Fatalf("mode = %v, want ModeSkip", m)
	}
}

func TestDetermineModeSSEvsJSON(t *testing.T) {
	if m := DetermineMode("text/event-stream; charset=utf-8", ""); m != ModeSSE {
		t.Fatalf("mode = %v, want ModeSSE", m)
	}
	if m := DetermineMode("application/json", ""); m != ModeJSON {
		t.Fatalf("mode = %v, want ModeJSON", m)
	}
}

func TestExtractorByteTransparency(t *testing.T) {
	body := []byte(`{"usage":{"input_tokens":5,"output_tokens":7}}`)
	var out bytes.Buffer
	e := New(&out, "application/json", "")

	// Write in several chunks to exercise partial writes.
	for i := 0; i < len(body); i += 7 {
		end := i + 7
		if end > len(body) {
			end = len(body)
		}
		if _, err := e.Write(body[i:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if !bytes.Equal(out.Bytes(), body) {
		t.Fatalf("output = %q, want exact passthrough %q", out.Bytes(), body)
	}

	counts := e.Finish()
	if counts.Input != 5 || counts.Output != 7 || counts.Total != 12 {
		t.Fatalf("counts = %+v, want {5 7 12}", counts)
	}
}

func TestExtractorAnthropicJSON(t *testing.T) {
	body := []byte(`{"usage":{"input_tokens":100,"output_tokens":50}}`)
	var out bytes.Buffer
	e := New(&out, "application/json", "")
	e.Write(body)
	counts := e.Finish()
	if counts != (Counts{Input: 100, Output: 50, Total: 150}) {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestExtractorOpenAIJSONWithTotal(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":10,"completion_tokens":20,"total_tokens":35}}`)
	var out bytes.Buffer
	e := New(&out, "application/json", "")
	e.Write(body)
	counts := e.Finish()
	if counts != (Counts{Input: 10, Output: 20, Total: 35}) {
		t.Fatalf("counts = %+v, want total to preserve explicit 35", counts)
	}
}

func TestExtractorOpenAIJSONWithoutTotal(t *testing.T) {
	body := []byte(`{"usage":{"prompt_tokens":10,"completion_tokens":20}}`)
	var out bytes.Buffer
	e := New(&out, "application/json", "")
	e.Write(body)
	counts := e.Finish()
	if counts != (Counts{Input: 10, Output: 20, Total: 30}) {
		t.Fatalf("counts = %+v, want computed total 30", counts)
	}
}

func TestExtractorMalformedJSONYieldsZero(t *testing.T) {
	var out bytes.Buffer
	e := New(&out, "application/json", "")
	e.Write([]byte("not json"))
	counts := e.Finish()
	if counts != (Counts{}) {
		t.Fatalf("counts = %+v, want zero value", counts)
	}
}

func TestExtractorEmptyBodyYieldsZero(t *testing.T) {
	var out bytes.Buffer
	e := New(&out, "application/json", "")
	counts := e.Finish()
	if counts != (Counts{}) {
		t.Fatalf("counts = %+v, want zero value", counts)
	}
}

func TestExtractorSSEAnthropic(t *testing.T) {
	body := "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":100}}}\n\n" +
		"event: message_delta\ndata: {\"type\":\"message_delta\",\"usage\":{\"output_tokens\":50}}\n\n"

	var out bytes.Buffer
	e := New(&out, "text/event-stream", "")
	if _, err := e.Write([]byte(body)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if out.String() != body {
		t.Fatalf("SSE passthrough mismatch:\ngot  %q\nwant %q", out.String(), body)
	}
	counts := e.Finish()
	if counts != (Counts{Input: 100, Output: 50, Total: 150}) {
		t.Fatalf("counts = %+v, want {100 50 150}", counts)
	}
}

func TestExtractorSSEOpenAIUsageChunk(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n" +
		"data: {\"usage\":{\"prompt_tokens\":8,\"completion_tokens\":4,\"total_tokens\":12}}\n\n" +
		"data: [DONE]\n\n"
	var out bytes.Buffer
	e := New(&out, "text/event-stream", "")
	e.Write([]byte(body))
	counts := e.Finish()
	if counts != (Counts{Input: 8, Output: 4, Total: 12}) {
		t.Fatalf("counts = %+v, want {8 4 12}", counts)
	}
}

func TestExtractorSSESplitAcrossChunks(t *testing.T) {
	line := "data: {\"type\":\"message_start\",\"message\":{\"usage\":{\"input_tokens\":9}}}\n\n"
	var out bytes.Buffer
	e := New(&out, "text/event-stream", "")
	mid := len(line) / 2
	e.Write([]byte(line[:mid]))
	e.Write([]byte(line[mid:]))
	counts := e.Finish()
	if counts.Input != 9 {
		t.Fatalf("Input = %d, want 9 (line split across Write calls)", counts.Input)
	}
}

func TestExtractorSkipModeYieldsZero(t *testing.T) {
	var out bytes.Buffer
	e := New(&out, "application/json", "gzip")
	body := []byte(`{"usage":{"input_tokens":5,"output_tokens":5}}`)
	e.Write(body)
	if !bytes.Equal(out.Bytes(), body) {
		t.Fatalf("skip mode must still forward bytes verbatim")
	}
	if counts := e.Finish(); counts != (Counts{}) {
		t.Fatalf("skip mode counts = %+v, want zero value", counts)
	}
}
