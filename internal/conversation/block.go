package conversation

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("conversation: not found")

type BlockType string

const (
	BlockTypeQuery    BlockType = "QUERY"
	BlockTypeAnalysis BlockType = "ANALYSIS"
	BlockTypeMetadata BlockType = "METADATA"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ExecutionResult carries the rows a generated query produced. Rows are
// positional against Columns so large results serialize compactly.
type ExecutionResult struct {
	Columns  []string `json:"columns,omitempty"`
	Rows     [][]any  `json:"rows"`
	RowCount int      `json:"row_count"`
}

// ContextBlock is one complete conversational turn: the user request, the
// assistant response, and optionally the generated query plus its result.
// A block is mutated in place while the pipeline runs and becomes immutable
// once it has been persisted with a terminal status.
type ContextBlock struct {
	BlockID           string           `json:"block_id"`
	UserID            string           `json:"user_id"`
	Timestamp         time.Time        `json:"timestamp"`
	BlockType         BlockType        `json:"block_type"`
	UserRequest       string           `json:"user_request"`
	AssistantResponse string           `json:"assistant_response"`
	GeneratedQuery    string           `json:"generated_query,omitempty"`
	ExecutionResult   *ExecutionResult `json:"execution_result,omitempty"`
	Status            Status           `json:"status"`
}

// HasResult reports whether the block carries usable result rows.
func (b ContextBlock) HasResult() bool {
	return b.ExecutionResult != nil && b.ExecutionResult.Rows != nil
}

// ResultRowCount returns the row count of the attached result. A missing or
// malformed result (nil rows) counts as zero, never an error.
func (b ContextBlock) ResultRowCount() int {
	if !b.HasResult() {
		return 0
	}
	return b.ExecutionResult.RowCount
}

// Terminal reports whether the block reached one of the two final statuses.
func (b ContextBlock) Terminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusFailed
}

// History persists finished context blocks and replays the most recent ones
// for a user, oldest first.
type History interface {
	Save(ctx context.Context, block ContextBlock) error
	GetRecent(ctx context.Context, userID string, n int) ([]ContextBlock, error)
}
