// Package seeder fills a DuckDB warehouse with date-partitioned demo event
// tables so the assistant has data to answer against.
package seeder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	db        *sql.DB
	generator *Generator
}

func NewService(cfg Config, db *sql.DB, logger *slog.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		cfg:       cfg,
		log:       logger,
		db:        db,
		generator: NewGenerator(cfg.Seed, cfg.UserCardinality),
	}, nil
}

func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("duckdb", cfg.WarehousePath)
	if err != nil {
		return nil, fmt.Errorf("open warehouse: %w", err)
	}
	return db, nil
}

// Run creates one table per day in the configured range and fills each with
// synthetic events. Existing tables are replaced so reruns stay idempotent.
func (s *Service) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", s.cfg.StartDate)
	if err != nil {
		return fmt.Errorf("parse start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", s.cfg.EndDate)
	if err != nil {
		return fmt.Errorf("parse end date: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date precedes start date")
	}

	tables := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		table := fmt.Sprintf("%s_%s", s.cfg.TablePrefix, day.Format("20060102"))
		if err := s.seedTable(ctx, table, day); err != nil {
			return fmt.Errorf("seed table %s: %w", table, err)
		}
		tables++
	}

	s.log.InfoContext(ctx, "warehouse seeded",
		slog.Int("tables", tables),
		slog.Int("rows_per_table", s.cfg.RowsPerDay),
		slog.String("start", s.cfg.StartDate),
		slog.String("end", s.cfg.EndDate),
	)
	return nil
}

func (s *Service) seedTable(ctx context.Context, table string, day time.Time) error {
	createSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s (
	event_id BIGINT NOT NULL,
	event_name VARCHAR NOT NULL,
	user_id VARCHAR NOT NULL,
	session_id VARCHAR NOT NULL,
	country VARCHAR NOT NULL,
	device VARCHAR NOT NULL,
	amount DOUBLE NOT NULL,
	ts TIMESTAMP NOT NULL
)`, quoteIdent(table))
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (event_id, event_name, user_id, session_id, country, device, amount, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		quoteIdent(table),
	)
	stmt, err := s.db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < s.cfg.RowsPerDay; i++ {
		row := s.generator.NextRow(day)
		if _, err := stmt.ExecContext(ctx,
			row.EventID, row.EventName, row.UserID, row.SessionID,
			row.Country, row.Device, row.Amount, row.TS,
		); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
