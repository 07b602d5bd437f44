package metasync

import (
	"errors"
	"strings"
	"time"

	"github.com/querypilot/querypilot/internal/tablesource"
)

var ErrCacheUnavailable = errors.New("metasync: no snapshot available")

const (
	GenerationMethodLLM      = "llm"
	GenerationMethodFallback = "fallback_static"

	dateSuffixToken = "YYYYMMDD"
	dateLayout      = "20060102"
)

// Example is one question/SQL pair injected into the generator prompt.
type Example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

type DateRange struct {
	Start string `json:"start"` // YYYY-MM-DD
	End   string `json:"end"`
}

// EventsTableInfo is the compact stand-in for a family of date-partitioned
// tables. It must stay much smaller than the raw enumeration while keeping
// enough structure to rebuild any individual table name or date-range union.
type EventsTableInfo struct {
	Count       int       `json:"count"`
	NamePattern string    `json:"name_pattern"` // e.g. events_YYYYMMDD
	DateRange   DateRange `json:"date_range"`
	Examples    []string  `json:"examples"`
	Irregular   []string  `json:"irregular,omitempty"`
}

// Prefix returns the fixed part of the name pattern.
func (i EventsTableInfo) Prefix() string {
	return strings.TrimSuffix(i.NamePattern, "_"+dateSuffixToken)
}

// TableForDate reconstructs the table name holding the given day.
func (i EventsTableInfo) TableForDate(day time.Time) string {
	return i.Prefix() + "_" + day.UTC().Format(dateLayout)
}

// TablesForRange reconstructs the daily table names between start and end
// inclusive, clamped to the known date range.
func (i EventsTableInfo) TablesForRange(start, end time.Time) []string {
	start = truncateDay(start)
	end = truncateDay(end)
	if rangeStart, err := time.Parse("2006-01-02", i.DateRange.Start); err == nil && start.Before(rangeStart) {
		start = rangeStart
	}
	if rangeEnd, err := time.Parse("2006-01-02", i.DateRange.End); err == nil && end.After(rangeEnd) {
		end = rangeEnd
	}

	names := make([]string, 0)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		names = append(names, i.TableForDate(day))
	}
	return names
}

// UnionAllSQL builds a scan source spanning the date range: a single table
// reference for one day, a UNION ALL subselect otherwise.
func (i EventsTableInfo) UnionAllSQL(start, end time.Time) string {
	names := i.TablesForRange(start, end)
	if len(names) == 0 {
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}
	selects := make([]string, 0, len(names))
	for _, name := range names {
		selects = append(selects, "SELECT * FROM "+name)
	}
	return "(" + strings.Join(selects, " UNION ALL ") + ")"
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Snapshot is one immutable version of the metadata cache. A refresh builds
// a complete new snapshot and atomically replaces the current pointer;
// existing snapshots are never mutated.
type Snapshot struct {
	GeneratedAt      time.Time            `json:"generated_at"`
	GenerationMethod string               `json:"generation_method"`
	Schema           []tablesource.Column `json:"schema"`
	FewShotExamples  []Example            `json:"few_shot_examples"`
	EventsTableInfo  EventsTableInfo      `json:"events_table_info"`
	SchemaInsights   string               `json:"schema_insights,omitempty"`
	SampleRows       []map[string]any     `json:"sample_rows,omitempty"`
	Degraded         bool                 `json:"degraded,omitempty"`
}
