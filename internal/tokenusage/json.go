package tokenusage

import "encoding/json"

type usageShape struct {
	Usage struct {
		InputTokens      *uint64 `json:"input_tokens"`
		OutputTokens     *uint64 `json:"output_tokens"`
		PromptTokens     *uint64 `json:"prompt_tokens"`
		CompletionTokens *uint64 `json:"completion_tokens"`
		TotalTokens      *uint64 `json:"total_tokens"`
	} `json:"usage"`
}

// parseBufferedJSON extracts usage from a complete JSON response body.
// Malformed JSON, a missing usage object, or an empty body all yield the
// zero value without error, per the extractor's fail-open contract.
func parseBufferedJSON(body []byte) Counts {
	if len(body) == 0 {
		return Counts{}
	}
	var shape usageShape
	if err := json.Unmarshal(body, &shape); err != nil {
		return Counts{}
	}
	return countsFromUsage(shape)
}

func countsFromUsage(shape usageShape) Counts {
	u := shape.Usage
	switch {
	case u.InputTokens != nil || u.OutputTokens != nil:
		// Anthropic shape.
		var c Counts
		if u.InputTokens != nil {
			c.Input = *u.InputTokens
		}
		if u.OutputTokens != nil {
			c.Output = *u.OutputTokens
		}
		c.Total = c.Input + c.Output
		return c
	case u.PromptTokens != nil || u.CompletionTokens != nil || u.TotalTokens != nil:
		// OpenAI/Copilot shape.
		var c Counts
		if u.PromptTokens != nil {
			c.Input = *u.PromptTokens
		}
		if u.CompletionTokens != nil {
			c.Output = *u.CompletionTokens
		}
		if u.TotalTokens != nil {
			c.Total = *u.TotalTokens
		} else {
			c.Total = c.Input + c.Output
		}
		return c
	default:
		return Counts{}
	}
}
