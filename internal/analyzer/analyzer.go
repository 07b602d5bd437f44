// Package analyzer produces prose interpretations of query results already
// present in the conversation. It never runs or emits SQL.
package analyzer

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

// NoDataResponse is returned verbatim when the conversation holds no query
// results to analyze.
const NoDataResponse = "There is no data available to analyze yet. Run a query first and I can interpret its results."

type Analyzer struct {
	llm   llm.Client
	clock func() time.Time
}

func New(client llm.Client) *Analyzer {
	return &Analyzer{llm: client, clock: time.Now}
}

// Analyze interprets prior results for the user. Entries without execution
// results contribute conversational context only; if no entry carries rows,
// the fixed no-data response is returned without calling the model.
func (a *Analyzer) Analyze(ctx context.Context, userRequest string, entries []conversation.AnalysisEntry) (string, error) {
	if strings.TrimSpace(userRequest) == "" {
		return "", fmt.Errorf("user request is required")
	}
	if !hasResults(entries) {
		return NoDataResponse, nil
	}

	user, err := buildAnalysisPrompt(userRequest, entries)
	if err != nil {
		return "", err
	}

	start := a.clock()
	response, llmErr := a.llm.ExecutePrompt(ctx, llm.Prompt{System: analyzeSystemPrompt, User: user})
	observability.ObserveLLMCall("analyzer", a.clock().Sub(start), llmErr)
	if llmErr != nil {
		return "", fmt.Errorf("analysis call: %w", llmErr)
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("analysis call: %w", llm.ErrEmptyResponse)
	}
	return response, nil
}

const analyzeSystemPrompt = "You interpret SQL query results for a data analytics assistant. " +
	"Explain what the numbers show in plain language, call out notable patterns, and answer the user's question. " +
	"Never produce SQL and never invent data that is not in the provided results."

func buildAnalysisPrompt(userRequest string, entries []conversation.AnalysisEntry) (string, error) {
	var builder strings.Builder
	builder.WriteString("Conversation so far, oldest first:\n\n")
	for i, entry := range entries {
		fmt.Fprintf(&builder, "Exchange %d\nUser: %s\nAssistant: %s\n", i+1, entry.UserRequest, entry.AssistantResponse)
		if entry.GeneratedQuery != "" {
			fmt.Fprintf(&builder, "SQL: %s\n", entry.GeneratedQuery)
		}
		if entry.ExecutionResult != nil && entry.ExecutionResult.Rows != nil {
			resultJSON, err := json.Marshal(entry.ExecutionResult)
			if err != nil {
				return "", fmt.Errorf("marshal execution result: %w", err)
			}
			fmt.Fprintf(&builder, "Result (JSON): %s\n", string(resultJSON))
		}
		builder.WriteString("\n")
	}
	fmt.Fprintf(&builder, "User question about these results:\n%s", strings.TrimSpace(userRequest))
	return builder.String(), nil
}

func hasResults(entries []conversation.AnalysisEntry) bool {
	for _, entry := range entries {
		if entry.ExecutionResult != nil && entry.ExecutionResult.Rows != nil {
			return true
		}
	}
	return false
}
