package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/llm"
)

type stubLLM struct {
	response string
	err      error
	prompt   llm.Prompt
}

func (s *stubLLM) ExecutePrompt(ctx context.Context, prompt llm.Prompt) (string, error) {
	s.prompt = prompt
	return s.response, s.err
}

func TestClassifyParsesEachCategory(t *testing.T) {
	categories := []Category{
		CategoryQueryRequest,
		CategoryMetadataRequest,
		CategoryGuideRequest,
		CategoryOutOfScope,
		CategoryDataAnalysis,
	}
	for _, want := range categories {
		stub := &stubLLM{response: `{"category": "` + string(want) + `", "confidence": 0.92, "reasoning": "clear intent"}`}
		classification, err := New(stub).Classify(context.Background(), "show me yesterday's events", nil)
		if err != nil {
			t.Fatalf("Classify(%s) error = %v", want, err)
		}
		if classification.Category != want {
			t.Fatalf("category = %q, want %q", classification.Category, want)
		}
		if classification.LowConfidence {
			t.Fatalf("LowConfidence = true for confidence 0.92")
		}
	}
}

func TestClassifyMalformedOutputResolvesOutOfScope(t *testing.T) {
	for _, response := range []string{
		"I think this is a query request",
		`{"category": "sql_stuff", "confidence": 0.9}`,
		"",
	} {
		stub := &stubLLM{response: response}
		classification, err := New(stub).Classify(context.Background(), "hello", nil)
		if err != nil {
			t.Fatalf("Classify() error = %v for response %q", err, response)
		}
		if classification.Category != CategoryOutOfScope {
			t.Fatalf("category = %q, want out_of_scope for response %q", classification.Category, response)
		}
		if !classification.LowConfidence {
			t.Fatalf("LowConfidence = false for response %q", response)
		}
	}
}

func TestClassifyLowConfidenceFlag(t *testing.T) {
	stub := &stubLLM{response: `{"category": "query_request", "confidence": 0.3, "reasoning": "ambiguous"}`}
	classification, err := New(stub).Classify(context.Background(), "maybe the numbers?", nil)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !classification.LowConfidence {
		t.Fatal("expected LowConfidence for confidence below the floor")
	}
	if classification.Category != CategoryQueryRequest {
		t.Fatalf("category = %q", classification.Category)
	}
}

func TestClassifyAcceptsFencedJSON(t *testing.T) {
	stub := &stubLLM{response: "```json\n{\"category\": \"data_analysis\", \"confidence\": 0.8}\n```"}
	classification, err := New(stub).Classify(context.Background(), "what does that table mean?", nil)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if classification.Category != CategoryDataAnalysis {
		t.Fatalf("category = %q, want data_analysis", classification.Category)
	}
}

func TestClassifyIncludesConversationContext(t *testing.T) {
	stub := &stubLLM{response: `{"category": "data_analysis", "confidence": 0.9}`}
	history := []conversation.Message{
		{Role: "user", Content: "top events last week"},
		{Role: "assistant", Content: "Here are the top events."},
	}
	if _, err := New(stub).Classify(context.Background(), "why is page_view so high?", history); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !strings.Contains(stub.prompt.User, "top events last week") {
		t.Fatalf("prompt missing conversation context: %q", stub.prompt.User)
	}
	if !strings.Contains(stub.prompt.User, "why is page_view so high?") {
		t.Fatalf("prompt missing request: %q", stub.prompt.User)
	}
}

func TestClassifyPropagatesLLMErrors(t *testing.T) {
	llmErr := errors.New("model offline")
	if _, err := New(&stubLLM{err: llmErr}).Classify(context.Background(), "count rows", nil); !errors.Is(err, llmErr) {
		t.Fatalf("err = %v, want wrapped llm error", err)
	}
}

func TestClassifyRejectsEmptyRequest(t *testing.T) {
	if _, err := New(&stubLLM{}).Classify(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty request")
	}
}
