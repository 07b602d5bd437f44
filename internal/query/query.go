package query

import (
	"context"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns  []string
	Rows     [][]any
	RowCount int
	Duration time.Duration
}

// Truncated reports whether the row limit cut the result short.
func (r Result) Truncated(limit int) bool {
	return limit > 0 && r.RowCount >= limit
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
