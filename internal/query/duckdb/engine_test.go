package duckdb

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/querypilot/querypilot/internal/query"
)

func newSQLMock(t *testing.T) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewEngine(db, time.Second), mock
}

func assertExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestExecuteWrapsQueryWithRowLimit(t *testing.T) {
	engine, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM (SELECT event_name, COUNT(*) AS c FROM events_20210131 GROUP BY event_name) AS q LIMIT 200")).
		WillReturnRows(sqlmock.NewRows([]string{"event_name", "c"}).
			AddRow("page_view", int64(42)).
			AddRow("click", int64(7)))

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT event_name, COUNT(*) AS c FROM events_20210131 GROUP BY event_name;",
		RowLimit: 200,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", result.RowCount)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "event_name" {
		t.Fatalf("Columns = %v", result.Columns)
	}
	if result.Rows[0][1] != int64(42) {
		t.Fatalf("Rows[0][1] = %v", result.Rows[0][1])
	}
	assertExpectations(t, mock)
}

func TestExecuteWithoutRowLimitRunsSQLVerbatim(t *testing.T) {
	engine, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events_20210101")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(9)))

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT COUNT(*) FROM events_20210101"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", result.RowCount)
	}
	assertExpectations(t, mock)
}

func TestExecuteNormalizesByteSliceValues(t *testing.T) {
	engine, mock := newSQLMock(t)

	mock.ExpectQuery("SELECT").
		WillReturnRows(sqlmock.NewRows([]string{"label"}).AddRow([]byte("page_view")))

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT label FROM events_20210101"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got, ok := result.Rows[0][0].(string); !ok || got != "page_view" {
		t.Fatalf("Rows[0][0] = %#v, want string \"page_view\"", result.Rows[0][0])
	}
	assertExpectations(t, mock)
}

func TestExecuteRejectsEmptySQL(t *testing.T) {
	engine, _ := newSQLMock(t)
	if _, err := engine.Execute(context.Background(), query.Request{SQL: " ;; "}); err == nil {
		t.Fatal("expected error for empty sql")
	}
}

func TestExecutePropagatesQueryErrors(t *testing.T) {
	engine, mock := newSQLMock(t)

	queryErr := errors.New("table does not exist")
	mock.ExpectQuery("SELECT").WillReturnError(queryErr)

	if _, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT 1 FROM missing"}); !errors.Is(err, queryErr) {
		t.Fatalf("err = %v, want wrapped query error", err)
	}
	assertExpectations(t, mock)
}

func TestStripTrailingSemicolons(t *testing.T) {
	cases := map[string]string{
		"SELECT 1;":        "SELECT 1",
		"SELECT 1 ; ; ":    "SELECT 1",
		"  SELECT 1  ":     "SELECT 1",
		"SELECT ';' AS s;": "SELECT ';' AS s",
	}
	for input, want := range cases {
		if got := stripTrailingSemicolons(input); got != want {
			t.Fatalf("stripTrailingSemicolons(%q) = %q, want %q", input, got, want)
		}
	}
}
