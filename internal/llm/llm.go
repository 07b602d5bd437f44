package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Prompt is one full instruction for the hosted model.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Client executes a prompt against a hosted language model and returns the
// raw text. The classifier, SQL generator, analyzer and the metadata cache
// refresh all go through this single call shape.
type Client interface {
	ExecutePrompt(ctx context.Context, prompt Prompt) (string, error)
}

// StripCodeFence removes a surrounding markdown code fence from model output.
// Models asked for JSON frequently wrap it in ```json fences anyway.
func StripCodeFence(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
