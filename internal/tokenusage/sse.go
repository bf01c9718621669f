package tokenusage

import (
	"bytes"
	"encoding/json"
	"strings"
)

type sseEventShape struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens *uint64 `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Usage struct {
		OutputTokens     *uint64 `json:"output_tokens"`
		PromptTokens     *uint64 `json:"prompt_tokens"`
		CompletionTokens *uint64 `json:"completion_tokens"`
		TotalTokens      *uint64 `json:"total_tokens"`
	} `json:"usage"`
}

// sseAccumulator incrementally parses Server-Sent-Events chunks, tolerating
// chunk boundaries that split a line.
type sseAccumulator struct {
	carry    []byte
	input    uint64
	output   uint64
	sawTotal bool
	total    uint64
}

func (a *sseAccumulator) feed(chunk []byte) {
	data := append(a.carry, chunk...)
	lines := bytes.Split(data, []byte("\n"))
	// The last element may be a partial line; carry it to the next chunk.
	a.carry = append([]byte(nil), lines[len(lines)-1]...)
	for _, line := range lines[:len(lines)-1] {
		a.processLine(line)
	}
}

// finish flushes any final carried line (a stream may end without a
// trailing newline) and returns the accumulated counts.
func (a *sseAccumulator) finish() Counts {
	if len(a.carry) > 0 {
		a.processLine(a.carry)
		a.carry = nil
	}
	total := a.total
	if !a.sawTotal {
		total = a.input + a.output
	}
	return Counts{Input: a.input, Output: a.output, Total: total}
}

func (a *sseAccumulator) processLine(line []byte) {
	s := strings.TrimSpace(string(line))
	if !strings.HasPrefix(s, "data:") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(s, "data:"))
	if payload == "" || payload == "[DONE]" {
		return
	}

	var evt sseEventShape
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return
	}

	switch evt.Type {
	case "message_start":
		if evt.Message.Usage.InputTokens != nil {
			a.input = *evt.Message.Usage.InputTokens
		}
	case "message_delta":
		if evt.Usage.OutputTokens != nil {
			a.output = *evt.Usage.OutputTokens
		}
	}

	if evt.Usage.PromptTokens != nil {
		a.input = *evt.Usage.PromptTokens
	}
	if evt.Usage.CompletionTokens != nil {
		a.output = *evt.Usage.CompletionTokens
	}
	if evt.Usage.TotalTokens != nil {
		a.total = *evt.Usage.TotalTokens
		a.sawTotal = true
	}
}
