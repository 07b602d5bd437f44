package metasync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/querypilot/querypilot/internal/llm"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/storage"
	"github.com/querypilot/querypilot/internal/tablesource"
)

type Config struct {
	Dataset          string
	TTL              time.Duration
	KeepSnapshots    int
	SampleTableRows  int
	MaxFewShots      int
	AbstractExamples int
}

// Cache serves metadata snapshots to the SQL generator. Reads go against an
// atomically swapped immutable snapshot and never wait for a refresh; a
// TTL-bounded memory layer avoids re-reading the blob store on every call.
// Exactly one refresh runs at a time; concurrent refresh requests attach to
// the in-flight one.
type Cache struct {
	cfg    Config
	logger *slog.Logger
	tables tablesource.Source
	llm    llm.Client
	blobs  storage.ObjectStore
	clock  func() time.Time

	current atomic.Pointer[Snapshot]

	mu        sync.Mutex // guards expiresAt
	expiresAt time.Time

	group singleflight.Group
}

func NewCache(cfg Config, tables tablesource.Source, llmClient llm.Client, blobs storage.ObjectStore, logger *slog.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.KeepSnapshots <= 0 {
		cfg.KeepSnapshots = 10
	}
	if cfg.SampleTableRows < 0 {
		cfg.SampleTableRows = 0
	}
	if cfg.MaxFewShots <= 0 {
		cfg.MaxFewShots = 8
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		cfg:    cfg,
		logger: logger,
		tables: tables,
		llm:    llmClient,
		blobs:  blobs,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Current returns the authoritative snapshot. Within the TTL it is served
// straight from memory; after expiry the blob store pointer is re-read, and
// a stale in-memory snapshot is preferred over failing when the store is
// unreachable.
func (c *Cache) Current(ctx context.Context) (*Snapshot, error) {
	if snapshot := c.freshSnapshot(); snapshot != nil {
		return snapshot, nil
	}

	value, err, _ := c.group.Do("load", func() (any, error) {
		if snapshot := c.freshSnapshot(); snapshot != nil {
			return snapshot, nil
		}
		snapshot, err := c.loadSnapshot(ctx)
		if err != nil {
			if stale := c.current.Load(); stale != nil {
				c.logger.WarnContext(ctx, "serving stale metadata snapshot", slog.Any("error", err))
				return stale, nil
			}
			return nil, err
		}
		c.install(snapshot)
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Snapshot), nil
}

func (c *Cache) GetSchemaInfo(ctx context.Context) ([]tablesource.Column, error) {
	snapshot, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Schema, nil
}

func (c *Cache) GetFewShotExamples(ctx context.Context) ([]Example, error) {
	snapshot, err := c.Current(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.FewShotExamples, nil
}

func (c *Cache) GetEventsTableInfo(ctx context.Context) (EventsTableInfo, error) {
	snapshot, err := c.Current(ctx)
	if err != nil {
		return EventsTableInfo{}, err
	}
	return snapshot.EventsTableInfo, nil
}

func (c *Cache) IsCacheAvailable(ctx context.Context) bool {
	_, err := c.Current(ctx)
	return err == nil
}

// Refresh builds a complete new snapshot from the live warehouse and swaps
// it in. A schema-fetch failure aborts the whole refresh and leaves the
// prior snapshot authoritative; an LLM failure only degrades the few-shot
// examples to the static fallback set.
func (c *Cache) Refresh(ctx context.Context) (*Snapshot, error) {
	value, err, _ := c.group.Do("refresh", func() (any, error) {
		snapshot, err := c.buildSnapshot(ctx)
		if err != nil {
			observability.ObserveCacheRefresh("error")
			return nil, err
		}
		if err := c.storeSnapshot(ctx, snapshot); err != nil {
			observability.ObserveCacheRefresh("error")
			return nil, err
		}
		c.pruneSnapshots(ctx)
		c.install(snapshot)
		if snapshot.Degraded {
			observability.ObserveCacheRefresh("degraded")
		} else {
			observability.ObserveCacheRefresh("ok")
		}
		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Snapshot), nil
}

func (c *Cache) buildSnapshot(ctx context.Context) (*Snapshot, error) {
	names, err := c.tables.ListTables(ctx, c.cfg.Dataset)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("dataset %q has no tables", c.cfg.Dataset)
	}

	info := AbstractTableNames(names, c.cfg.AbstractExamples)
	representative := names[len(names)-1]
	if len(info.Examples) > 0 {
		representative = info.Examples[len(info.Examples)-1]
	}

	schema, err := c.tables.GetSchema(ctx, representative)
	if err != nil {
		return nil, fmt.Errorf("get schema for %q: %w", representative, err)
	}

	snapshot := &Snapshot{
		GeneratedAt:      c.clock(),
		GenerationMethod: GenerationMethodLLM,
		Schema:           schema,
		EventsTableInfo:  info,
	}

	if c.cfg.SampleTableRows > 0 {
		samples, err := c.tables.FetchSampleRows(ctx, representative, c.cfg.SampleTableRows)
		if err != nil {
			c.logger.WarnContext(ctx, "sample row fetch failed", slog.String("table", representative), slog.Any("error", err))
		} else {
			snapshot.SampleRows = samples
		}
	}

	examples, insights, err := c.generateExamples(ctx, snapshot)
	if err != nil {
		c.logger.WarnContext(ctx, "example generation failed, using static fallback", slog.Any("error", err))
		snapshot.GenerationMethod = GenerationMethodFallback
		snapshot.FewShotExamples = fallbackExamples(snapshot.EventsTableInfo, schema)
		snapshot.Degraded = true
		return snapshot, nil
	}
	if len(examples) > c.cfg.MaxFewShots {
		examples = examples[:c.cfg.MaxFewShots]
	}
	snapshot.FewShotExamples = examples
	snapshot.SchemaInsights = insights
	return snapshot, nil
}

func (c *Cache) generateExamples(ctx context.Context, snapshot *Snapshot) ([]Example, string, error) {
	schemaJSON, err := json.Marshal(snapshot.Schema)
	if err != nil {
		return nil, "", fmt.Errorf("marshal schema: %w", err)
	}
	infoJSON, err := json.Marshal(snapshot.EventsTableInfo)
	if err != nil {
		return nil, "", fmt.Errorf("marshal table info: %w", err)
	}

	system := "You prepare few-shot material for a natural-language-to-SQL assistant over an analytics warehouse. " +
		"Respond with JSON only: {\"examples\": [{\"question\": ..., \"sql\": ...}], \"insights\": \"...\"}."
	user := fmt.Sprintf(
		"Table schema (JSON):\n%s\n\nDate-partitioned table inventory (JSON):\n%s\n\nProduce up to %d question/SQL pairs covering counts, top-N and date ranges, plus a short prose note on schema quirks.",
		string(schemaJSON), string(infoJSON), c.cfg.MaxFewShots,
	)

	start := c.clock()
	raw, err := c.llm.ExecutePrompt(ctx, llm.Prompt{System: system, User: user})
	observability.ObserveLLMCall("metasync", c.clock().Sub(start), err)
	if err != nil {
		return nil, "", err
	}

	var parsed struct {
		Examples []Example `json:"examples"`
		Insights string    `json:"insights"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &parsed); err != nil {
		return nil, "", fmt.Errorf("decode example generation output: %w", err)
	}
	if len(parsed.Examples) == 0 {
		return nil, "", fmt.Errorf("example generation returned no examples")
	}
	return parsed.Examples, parsed.Insights, nil
}

// fallbackExamples is the last-known-good static set used when the LLM is
// unavailable during refresh. The SQL references real tables reconstructed
// from the abstraction so the examples stay executable.
func fallbackExamples(info EventsTableInfo, schema []tablesource.Column) []Example {
	table := "events"
	if info.NamePattern != "" {
		if end, err := time.Parse("2006-01-02", info.DateRange.End); err == nil {
			table = info.TableForDate(end)
		}
	}
	firstColumn := "event_name"
	if len(schema) > 0 {
		firstColumn = schema[0].Name
	}
	return []Example{
		{
			Question: "How many rows were recorded on the most recent day?",
			SQL:      fmt.Sprintf("SELECT COUNT(*) AS row_count FROM %s", table),
		},
		{
			Question: "What are the top 10 values by frequency on the most recent day?",
			SQL:      fmt.Sprintf("SELECT %s, COUNT(*) AS freq FROM %s GROUP BY %s ORDER BY freq DESC LIMIT 10", firstColumn, table, firstColumn),
		},
	}
}

func (c *Cache) loadSnapshot(ctx context.Context) (*Snapshot, error) {
	if c.blobs == nil {
		return nil, ErrCacheUnavailable
	}
	reader, err := c.blobs.Get(ctx, storage.CurrentSnapshotKey())
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrCacheUnavailable
		}
		return nil, fmt.Errorf("read current snapshot: %w", err)
	}
	defer func() { _ = reader.Close() }()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read current snapshot body: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode current snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *Cache) storeSnapshot(ctx context.Context, snapshot *Snapshot) error {
	if c.blobs == nil {
		return nil
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	historyKey := storage.SnapshotKey(snapshot.GeneratedAt)
	if _, err := c.blobs.Put(ctx, historyKey, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write snapshot history: %w", err)
	}
	if _, err := c.blobs.Put(ctx, storage.CurrentSnapshotKey(), bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write current snapshot pointer: %w", err)
	}
	return nil
}

func (c *Cache) pruneSnapshots(ctx context.Context) {
	if c.blobs == nil {
		return
	}
	objects, err := c.blobs.List(ctx, storage.SnapshotPrefix())
	if err != nil {
		c.logger.WarnContext(ctx, "snapshot history listing failed", slog.Any("error", err))
		return
	}
	excess := len(objects) - c.cfg.KeepSnapshots
	for i := 0; i < excess; i++ {
		if err := c.blobs.Delete(ctx, objects[i].Key); err != nil {
			c.logger.WarnContext(ctx, "snapshot prune failed", slog.String("key", objects[i].Key), slog.Any("error", err))
		}
	}
}

func (c *Cache) freshSnapshot() *Snapshot {
	snapshot := c.current.Load()
	if snapshot == nil {
		return nil
	}
	c.mu.Lock()
	fresh := c.clock().Before(c.expiresAt)
	c.mu.Unlock()
	if !fresh {
		return nil
	}
	return snapshot
}

func (c *Cache) install(snapshot *Snapshot) {
	c.current.Store(snapshot)
	c.mu.Lock()
	c.expiresAt = c.clock().Add(c.cfg.TTL)
	c.mu.Unlock()
	observability.SetCacheSnapshotAge(c.clock().Sub(snapshot.GeneratedAt))
}
