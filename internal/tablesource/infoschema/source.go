package infoschema

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/querypilot/querypilot/internal/tablesource"
)

// Source reads warehouse metadata through information_schema, which both
// duckdb and postgres expose with the same column names.
type Source struct {
	db *sql.DB
}

func NewSource(db *sql.DB) *Source {
	return &Source{db: db}
}

func (s *Source) ListTables(ctx context.Context, dataset string) ([]string, error) {
	query := `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = ?
ORDER BY table_name ASC`
	rows, err := s.db.QueryContext(ctx, query, dataset)
	if err != nil {
		return nil, fmt.Errorf("list tables for dataset %q: %w", dataset, err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return names, nil
}

func (s *Source) GetSchema(ctx context.Context, table string) ([]tablesource.Column, error) {
	query := `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_name = ?
ORDER BY ordinal_position ASC`
	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("get schema for table %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns := make([]tablesource.Column, 0)
	for rows.Next() {
		var name, dataType, isNullable string
		if err := rows.Scan(&name, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		mode := "REQUIRED"
		if strings.EqualFold(isNullable, "yes") {
			mode = "NULLABLE"
		}
		columns = append(columns, tablesource.Column{Name: name, Type: dataType, Mode: mode})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q has no columns", table)
	}
	return columns, nil
}

func (s *Source) FetchSampleRows(ctx context.Context, table string, n int) ([]map[string]any, error) {
	if n <= 0 {
		return []map[string]any{}, nil
	}
	query := "SELECT * FROM " + quoteIdent(table) + " LIMIT " + strconv.Itoa(n)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch sample rows from %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sample row columns: %w", err)
	}

	samples := make([]map[string]any, 0, n)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan sample row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
				continue
			}
			row[column] = values[i]
		}
		samples = append(samples, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sample rows: %w", err)
	}
	return samples, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
