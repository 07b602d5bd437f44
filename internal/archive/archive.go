// Package archive writes completed query results to the blob store as
// parquet files, keyed by user and day, for offline inspection.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/storage"
)

type Archiver struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
	Clock  func() time.Time
}

type archiveRecord struct {
	BlockID          string `parquet:"block_id"`
	UserID           string `parquet:"user_id"`
	RowIndex         int64  `parquet:"row_index"`
	RowJSON          string `parquet:"row_json"`
	ArchivedAtUnixMs int64  `parquet:"archived_at_unix_ms"`
}

// Archive encodes the block's execution result and stores it under the
// user's archive prefix. Blocks without results are skipped silently.
func (a *Archiver) Archive(ctx context.Context, block conversation.ContextBlock) (string, error) {
	if a.Store == nil {
		return "", fmt.Errorf("object store is required")
	}
	if !block.HasResult() {
		return "", nil
	}

	now := a.now()
	encoded, err := encodeResult(block, now)
	if err != nil {
		return "", err
	}

	key, err := storage.ArchiveKey(block.UserID, block.BlockID, now)
	if err != nil {
		return "", fmt.Errorf("build archive key: %w", err)
	}
	if _, err := a.Store.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		return "", fmt.Errorf("put archive object: %w", err)
	}

	if a.Logger != nil {
		a.Logger.InfoContext(ctx, "archived query result",
			slog.String("block_id", block.BlockID),
			slog.String("object_key", key),
			slog.Int("row_count", block.ResultRowCount()),
		)
	}
	return key, nil
}

func encodeResult(block conversation.ContextBlock, archivedAt time.Time) ([]byte, error) {
	result := block.ExecutionResult
	records := make([]archiveRecord, 0, len(result.Rows))
	for index, row := range result.Rows {
		rowObject := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			if i < len(row) {
				rowObject[column] = row[i]
			}
		}
		rowJSON, err := json.Marshal(rowObject)
		if err != nil {
			return nil, fmt.Errorf("marshal result row %d: %w", index, err)
		}
		records = append(records, archiveRecord{
			BlockID:          block.BlockID,
			UserID:           block.UserID,
			RowIndex:         int64(index),
			RowJSON:          string(rowJSON),
			ArchivedAtUnixMs: archivedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[archiveRecord](buf)
	if _, err := writer.Write(records); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *Archiver) now() time.Time {
	if a.Clock != nil {
		return a.Clock().UTC()
	}
	return time.Now().UTC()
}
