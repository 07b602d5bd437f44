// Package classifier routes an incoming user request to one of the assistant
// pipelines with a single LLM call.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/observability"
)

type Category string

const (
	CategoryQueryRequest    Category = "query_request"
	CategoryMetadataRequest Category = "metadata_request"
	CategoryGuideRequest    Category = "guide_request"
	CategoryOutOfScope      Category = "out_of_scope"
	CategoryDataAnalysis    Category = "data_analysis"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryQueryRequest, CategoryMetadataRequest, CategoryGuideRequest, CategoryOutOfScope, CategoryDataAnalysis:
		return true
	}
	return false
}

type Classification struct {
	Category      Category
	Confidence    float64
	Reasoning     string
	LowConfidence bool
}

type Classifier struct {
	llm   llm.Client
	clock func() time.Time
}

func New(client llm.Client) *Classifier {
	return &Classifier{llm: client, clock: time.Now}
}

const confidenceFloor = 0.5

// Classify labels the request using the recent conversation for context.
// Any malformed or unrecognized model output resolves to out_of_scope with
// LowConfidence set rather than failing the request.
func (c *Classifier) Classify(ctx context.Context, userRequest string, history []conversation.Message) (Classification, error) {
	if strings.TrimSpace(userRequest) == "" {
		return Classification{}, fmt.Errorf("user request is required")
	}

	start := c.clock()
	raw, err := c.llm.ExecutePrompt(ctx, llm.Prompt{
		System: classifySystemPrompt,
		User:   buildClassifyPrompt(userRequest, history),
	})
	observability.ObserveLLMCall("classifier", c.clock().Sub(start), err)
	if err != nil {
		return Classification{}, fmt.Errorf("classification call: %w", err)
	}

	classification := parseClassification(raw)
	observability.ObserveClassification(string(classification.Category))
	return classification, nil
}

const classifySystemPrompt = "You classify requests sent to a data analytics assistant that answers questions " +
	"about event data in a SQL warehouse. Respond with JSON only, no markdown: " +
	`{"category": "...", "confidence": 0.0, "reasoning": "..."}. ` +
	"Categories: query_request (wants data retrieved via SQL), metadata_request (asks what data or tables exist), " +
	"guide_request (asks how to use the assistant), data_analysis (asks to interpret results already shown in this conversation), " +
	"out_of_scope (anything else, including small talk and requests to modify data)."

func buildClassifyPrompt(userRequest string, history []conversation.Message) string {
	var builder strings.Builder
	if len(history) > 0 {
		builder.WriteString("Recent conversation:\n")
		for _, message := range history {
			fmt.Fprintf(&builder, "[%s] %s\n", message.Role, message.Content)
		}
		builder.WriteString("\n")
	}
	builder.WriteString("Request to classify:\n")
	builder.WriteString(strings.TrimSpace(userRequest))
	return builder.String()
}

func parseClassification(raw string) Classification {
	var parsed struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &parsed); err != nil {
		return Classification{
			Category:      CategoryOutOfScope,
			Reasoning:     "classifier output was not valid JSON",
			LowConfidence: true,
		}
	}

	category := Category(strings.TrimSpace(strings.ToLower(parsed.Category)))
	if !category.Valid() {
		return Classification{
			Category:      CategoryOutOfScope,
			Reasoning:     fmt.Sprintf("classifier returned unknown category %q", parsed.Category),
			LowConfidence: true,
		}
	}

	return Classification{
		Category:      category,
		Confidence:    parsed.Confidence,
		Reasoning:     parsed.Reasoning,
		LowConfidence: parsed.Confidence < confidenceFloor,
	}
}
