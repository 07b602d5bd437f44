// Package sqlgen turns a natural language request into one safe DuckDB
// SELECT statement, grounded in the cached warehouse metadata.
package sqlgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/conversation"
	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/metasync"
	"github.com/querypilot/querypilot/internal/observability"
)

type Config struct {
	// FallbackTable is the one table referenced when no metadata snapshot
	// is available.
	FallbackTable string
	MaxResultRows int
}

type Generated struct {
	SQL string
	// Degraded is set when the statement was produced without a metadata
	// snapshot and is restricted to the fallback table.
	Degraded bool
}

type Generator struct {
	cfg   Config
	llm   llm.Client
	clock func() time.Time
}

func New(cfg Config, client llm.Client) *Generator {
	if cfg.MaxResultRows <= 0 {
		cfg.MaxResultRows = 200
	}
	return &Generator{cfg: cfg, llm: client, clock: time.Now}
}

// Generate produces a sanitized SELECT statement. A nil snapshot switches to
// degraded mode, which targets only the configured fallback table.
func (g *Generator) Generate(ctx context.Context, userRequest string, history []conversation.Message, snapshot *metasync.Snapshot) (Generated, error) {
	if strings.TrimSpace(userRequest) == "" {
		return Generated{}, fmt.Errorf("user request is required")
	}

	degraded := snapshot == nil
	var user string
	var err error
	if degraded {
		if strings.TrimSpace(g.cfg.FallbackTable) == "" {
			return Generated{}, fmt.Errorf("no metadata snapshot and no fallback table configured")
		}
		user = g.buildFallbackPrompt(userRequest, history)
	} else {
		user, err = g.buildPrompt(userRequest, history, snapshot)
		if err != nil {
			return Generated{}, err
		}
	}

	start := g.clock()
	raw, llmErr := g.llm.ExecutePrompt(ctx, llm.Prompt{System: generateSystemPrompt, User: user})
	observability.ObserveLLMCall("sqlgen", g.clock().Sub(start), llmErr)
	if llmErr != nil {
		return Generated{}, fmt.Errorf("sql generation call: %w", llmErr)
	}

	sqlText, err := Sanitize(raw)
	if err != nil {
		observability.IncrementSQLRejection()
		return Generated{}, err
	}
	return Generated{SQL: sqlText, Degraded: degraded}, nil
}

const generateSystemPrompt = "You convert natural language analytics requests into a single DuckDB SQL query. " +
	"DuckDB uses PostgreSQL-like SQL syntax. " +
	"Return ONLY SQL. No markdown, no explanation."

func (g *Generator) buildPrompt(userRequest string, history []conversation.Message, snapshot *metasync.Snapshot) (string, error) {
	schemaJSON, err := json.Marshal(snapshot.Schema)
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	examplesJSON, err := json.Marshal(snapshot.FewShotExamples)
	if err != nil {
		return "", fmt.Errorf("marshal examples: %w", err)
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "Event table schema (JSON):\n%s\n\n", string(schemaJSON))
	writeTableInventory(&builder, snapshot.EventsTableInfo)
	if snapshot.SchemaInsights != "" {
		fmt.Fprintf(&builder, "Schema notes:\n%s\n\n", snapshot.SchemaInsights)
	}
	if len(snapshot.SampleRows) > 0 {
		if sampleJSON, err := json.Marshal(snapshot.SampleRows); err == nil {
			fmt.Fprintf(&builder, "Sample rows (JSON):\n%s\n\n", string(sampleJSON))
		}
	}
	fmt.Fprintf(&builder, "Example question/SQL pairs (JSON):\n%s\n\n", string(examplesJSON))
	writeHistory(&builder, history)
	fmt.Fprintf(&builder, "User request:\n%s\n\n", strings.TrimSpace(userRequest))
	fmt.Fprintf(&builder, "Rules:\n- Use only tables reconstructed from the inventory above.\n- Prefer explicit columns.\n- Add LIMIT %d unless the user asks otherwise.\n- Output a single SQL query only.", g.cfg.MaxResultRows)
	return builder.String(), nil
}

// writeTableInventory renders the abstracted partition inventory together
// with the reconstruction rules the model needs to expand it back into real
// table names.
func writeTableInventory(builder *strings.Builder, info metasync.EventsTableInfo) {
	if info.NamePattern == "" {
		return
	}
	fmt.Fprintf(builder, "Table inventory:\n")
	fmt.Fprintf(builder, "- %d daily tables named %s cover %s through %s (for example %s).\n",
		info.Count, info.NamePattern, info.DateRange.Start, info.DateRange.End, strings.Join(info.Examples, ", "))
	fmt.Fprintf(builder, "- To reference one day, replace YYYYMMDD with that date, e.g. %s for %s.\n",
		info.TableForDate(mustDate(info.DateRange.End)), info.DateRange.End)
	fmt.Fprintf(builder, "- To span multiple days, UNION ALL the per-day tables; never reference a table outside the covered range.\n")
	if len(info.Irregular) > 0 {
		fmt.Fprintf(builder, "- Additional tables: %s.\n", strings.Join(info.Irregular, ", "))
	}
	builder.WriteString("\n")
}

func (g *Generator) buildFallbackPrompt(userRequest string, history []conversation.Message) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Warehouse metadata is currently unavailable. The only table you may reference is %s, a daily event table.\n\n", g.cfg.FallbackTable)
	writeHistory(&builder, history)
	fmt.Fprintf(&builder, "User request:\n%s\n\n", strings.TrimSpace(userRequest))
	fmt.Fprintf(&builder, "Rules:\n- Reference only %s.\n- Add LIMIT %d unless the user asks otherwise.\n- Output a single SQL query only.", g.cfg.FallbackTable, g.cfg.MaxResultRows)
	return builder.String()
}

func writeHistory(builder *strings.Builder, history []conversation.Message) {
	if len(history) == 0 {
		return
	}
	builder.WriteString("Recent conversation:\n")
	for _, message := range history {
		fmt.Fprintf(builder, "[%s] %s\n", message.Role, message.Content)
	}
	builder.WriteString("\n")
}

func mustDate(value string) time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
