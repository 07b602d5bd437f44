package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/orchestrator"
)

type askRequest struct {
	Text string `json:"text"`
}

type executionResultPayload struct {
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

type blockPayload struct {
	BlockID           string                  `json:"block_id"`
	UserID            string                  `json:"user_id"`
	Timestamp         time.Time               `json:"timestamp"`
	BlockType         string                  `json:"block_type"`
	UserRequest       string                  `json:"user_request"`
	AssistantResponse string                  `json:"assistant_response"`
	GeneratedQuery    string                  `json:"generated_query,omitempty"`
	ExecutionResult   *executionResultPayload `json:"execution_result,omitempty"`
	Status            string                  `json:"status"`
}

type askResponse struct {
	Block     blockPayload `json:"block"`
	Category  string       `json:"category"`
	Degraded  bool         `json:"degraded"`
	Persisted bool         `json:"persisted"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, identity, ok := decodeAskRequest(deps, w, r)
	if !ok {
		return
	}

	response, err := deps.Assistant.Handle(r.Context(), orchestrator.Request{
		UserID: identity.UserID,
		Text:   req.Text,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, buildAskResponse(response))
}

// handleAskStream relays orchestrator progress as server-sent events and
// finishes with a "result" event carrying the full response.
func handleAskStream(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	req, identity, ok := decodeAskRequest(deps, w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(r.Context(), w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming", false, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := make(chan orchestrator.Event, 16)
	type handleResult struct {
		response orchestrator.Response
		err      error
	}
	done := make(chan handleResult, 1)
	go func() {
		response, err := deps.Assistant.Handle(r.Context(), orchestrator.Request{
			UserID: identity.UserID,
			Text:   req.Text,
			Events: events,
		})
		close(events)
		done <- handleResult{response: response, err: err}
	}()

	for event := range events {
		writeSSE(w, flusher, "progress", event)
	}

	result := <-done
	if result.err != nil {
		writeSSE(w, flusher, "error", map[string]any{"message": result.err.Error()})
		return
	}
	writeSSE(w, flusher, "result", buildAskResponse(result.response))
}

func decodeAskRequest(deps Dependencies, w http.ResponseWriter, r *http.Request) (askRequest, auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHENTICATED", "request identity is missing", false, nil)
		return askRequest{}, auth.Identity{}, false
	}
	if !identity.HasRole(auth.RoleAssistantUser) {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", "assistant_user role is required", false, nil)
		return askRequest{}, auth.Identity{}, false
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", false, nil)
		return askRequest{}, auth.Identity{}, false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TEXT_REQUIRED", "text is required", false, nil)
		return askRequest{}, auth.Identity{}, false
	}
	return req, identity, true
}

func buildAskResponse(response orchestrator.Response) askResponse {
	return askResponse{
		Block:     buildBlockPayload(response.Block),
		Category:  string(response.Category),
		Degraded:  response.Degraded,
		Persisted: response.Persisted,
	}
}

func buildBlockPayload(block conversation.ContextBlock) blockPayload {
	payload := blockPayload{
		BlockID:           block.BlockID,
		UserID:            block.UserID,
		Timestamp:         block.Timestamp,
		BlockType:         string(block.BlockType),
		UserRequest:       block.UserRequest,
		AssistantResponse: block.AssistantResponse,
		GeneratedQuery:    block.GeneratedQuery,
		Status:            string(block.Status),
	}
	if block.ExecutionResult != nil {
		payload.ExecutionResult = &executionResultPayload{
			Columns:  block.ExecutionResult.Columns,
			Rows:     block.ExecutionResult.Rows,
			RowCount: block.ExecutionResult.RowCount,
		}
	}
	return payload
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: " + string(data) + "\n\n"))
	flusher.Flush()
}
