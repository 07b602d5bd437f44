package migrations

import (
	"strings"
	"testing"
)

func TestConversationMigrationContainsRequiredObjects(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_context_block.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE context_block",
		"block_id TEXT PRIMARY KEY",
		"execution_result JSONB",
		"CREATE INDEX idx_context_block_user_ts_desc",
	}

	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}
