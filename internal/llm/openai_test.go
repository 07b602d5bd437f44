package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAIClientValidatesConfig(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected base URL error")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected api key error")
	}
}

func TestExecutePromptReturnsContent(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "SELECT 1"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Model: "test-model", MaxTokens: 128})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	text, err := client.ExecutePrompt(context.Background(), Prompt{System: "sys", User: "usr", MaxTokens: 64})
	if err != nil {
		t.Fatalf("ExecutePrompt() error = %v", err)
	}
	if text != "SELECT 1" {
		t.Fatalf("text = %q", text)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("model = %v", captured["model"])
	}
	if captured["max_tokens"] != float64(64) {
		t.Fatalf("max_tokens = %v", captured["max_tokens"])
	}
}

func TestExecutePromptEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	_, err = client.ExecutePrompt(context.Background(), Prompt{System: "s", User: "u"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestExecutePromptUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}

	if _, err := client.ExecutePrompt(context.Background(), Prompt{System: "s", User: "u"}); err == nil {
		t.Fatal("expected upstream error")
	}
}
