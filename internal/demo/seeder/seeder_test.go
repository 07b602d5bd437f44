package seeder

import (
	"context"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestRunSeedsOneTablePerDay(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	cfg := DefaultConfig()
	cfg.StartDate = "2021-01-30"
	cfg.EndDate = "2021-01-31"
	cfg.RowsPerDay = 2

	for _, table := range []string{"events_20210130", "events_20210131"} {
		mock.ExpectExec(`CREATE OR REPLACE TABLE "` + table + `"`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		prepared := mock.ExpectPrepare(`INSERT INTO "` + table + `"`)
		for i := 0; i < cfg.RowsPerDay; i++ {
			prepared.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}

	service, err := NewService(cfg, db, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	day := time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC)

	first := NewGenerator(7, 50)
	second := NewGenerator(7, 50)
	for i := 0; i < 10; i++ {
		a := first.NextRow(day)
		b := second.NextRow(day)
		if a != b {
			t.Fatalf("row %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestGeneratorRowsStayWithinDay(t *testing.T) {
	day := time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC)
	generator := NewGenerator(1, 10)
	for i := 0; i < 100; i++ {
		row := generator.NextRow(day)
		if row.TS.Before(day) || !row.TS.Before(day.AddDate(0, 0, 1)) {
			t.Fatalf("timestamp %v outside day %v", row.TS, day)
		}
		if row.EventName == "" || row.UserID == "" {
			t.Fatalf("row missing fields: %+v", row)
		}
	}
}

func TestLoadConfigFromEnvValidates(t *testing.T) {
	env := map[string]string{
		"QUERYPILOT_SEED_START_DATE":   "2021-02-01",
		"QUERYPILOT_SEED_END_DATE":     "2021-01-01",
		"QUERYPILOT_SEED_ROWS_PER_DAY": "10",
	}
	lookup := func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
	if _, err := LoadConfigFromEnv(lookup); err == nil {
		t.Fatal("expected error when end date precedes start date")
	}

	env["QUERYPILOT_SEED_END_DATE"] = "2021-02-28"
	cfg, err := LoadConfigFromEnv(lookup)
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.StartDate != "2021-02-01" || cfg.RowsPerDay != 10 {
		t.Fatalf("cfg = %+v", cfg)
	}
}
