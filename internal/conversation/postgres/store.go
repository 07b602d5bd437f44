package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/querypilot/querypilot/internal/conversation"
)

// Store persists context blocks in postgres. Writes are append-only: a block
// is saved exactly once, after it reached a terminal status.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, block conversation.ContextBlock) error {
	if block.BlockID == "" {
		return fmt.Errorf("block id is required")
	}
	if !block.Terminal() {
		return fmt.Errorf("block %q has non-terminal status %q", block.BlockID, block.Status)
	}

	var resultJSON any
	if block.ExecutionResult != nil {
		encoded, err := json.Marshal(block.ExecutionResult)
		if err != nil {
			return fmt.Errorf("marshal execution result: %w", err)
		}
		resultJSON = string(encoded)
	}

	query := `
INSERT INTO context_block (block_id, user_id, ts, block_type, user_request, assistant_response, generated_query, execution_result, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)`
	if _, err := s.db.ExecContext(ctx, query,
		block.BlockID,
		block.UserID,
		block.Timestamp,
		string(block.BlockType),
		block.UserRequest,
		block.AssistantResponse,
		nullableString(block.GeneratedQuery),
		resultJSON,
		string(block.Status),
	); err != nil {
		return fmt.Errorf("insert context block: %w", err)
	}
	return nil
}

// GetRecent returns up to n blocks for the user in chronological order,
// oldest first, so the formatter can consume them directly.
func (s *Store) GetRecent(ctx context.Context, userID string, n int) ([]conversation.ContextBlock, error) {
	if n <= 0 {
		return []conversation.ContextBlock{}, nil
	}

	query := `
SELECT block_id, user_id, ts, block_type, user_request, assistant_response, generated_query, execution_result, status
FROM context_block
WHERE user_id = $1
ORDER BY ts DESC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	blocks := make([]conversation.ContextBlock, 0, n)
	for rows.Next() {
		var block conversation.ContextBlock
		var blockType, status string
		var generatedQuery sql.NullString
		var resultJSON sql.NullString
		if err := rows.Scan(
			&block.BlockID,
			&block.UserID,
			&block.Timestamp,
			&blockType,
			&block.UserRequest,
			&block.AssistantResponse,
			&generatedQuery,
			&resultJSON,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan context block row: %w", err)
		}
		block.BlockType = conversation.BlockType(blockType)
		block.Status = conversation.Status(status)
		if generatedQuery.Valid {
			block.GeneratedQuery = generatedQuery.String
		}
		if resultJSON.Valid && resultJSON.String != "" {
			var result conversation.ExecutionResult
			if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
				return nil, fmt.Errorf("decode execution result for block %q: %w", block.BlockID, err)
			}
			block.ExecutionResult = &result
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context block rows: %w", err)
	}

	// Reverse the DESC page into chronological order.
	for i, j := 0, len(blocks)-1; i < j; i, j = i+1, j-1 {
		blocks[i], blocks[j] = blocks[j], blocks[i]
	}
	return blocks, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
