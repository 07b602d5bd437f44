package tablesource

import "context"

// Column describes one column of a warehouse table. Mode mirrors the
// REQUIRED/NULLABLE distinction analytical warehouses expose.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// Source exposes the live warehouse metadata the cache refresh reads.
// It is only consulted during a refresh, never on the request path.
type Source interface {
	ListTables(ctx context.Context, dataset string) ([]string, error)
	GetSchema(ctx context.Context, table string) ([]Column, error)
	FetchSampleRows(ctx context.Context, table string, n int) ([]map[string]any, error)
}
