package metasync

import (
	"encoding/json"
	"testing"
	"time"
)

func eventTableNames(start, end time.Time) []string {
	names := make([]string, 0)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		names = append(names, "events_"+day.Format("20060102"))
	}
	return names
}

func TestAbstractTableNamesRoundTripsDateRangeAndCount(t *testing.T) {
	start := time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC)
	names := eventTableNames(start, end)
	if len(names) != 92 {
		t.Fatalf("fixture has %d names, want 92", len(names))
	}

	info := AbstractTableNames(names, 2)
	if info.Count != 92 {
		t.Fatalf("Count = %d, want 92", info.Count)
	}
	if info.NamePattern != "events_YYYYMMDD" {
		t.Fatalf("NamePattern = %q", info.NamePattern)
	}
	if info.DateRange.Start != "2020-11-01" || info.DateRange.End != "2021-01-31" {
		t.Fatalf("DateRange = %+v", info.DateRange)
	}
	if len(info.Irregular) != 0 {
		t.Fatalf("Irregular = %v", info.Irregular)
	}
	if info.TableForDate(start) != "events_20201101" {
		t.Fatalf("TableForDate(start) = %q", info.TableForDate(start))
	}
	if info.TableForDate(end) != "events_20210131" {
		t.Fatalf("TableForDate(end) = %q", info.TableForDate(end))
	}
}

func TestAbstractTableNamesStaysUnderTenPercentOfRaw(t *testing.T) {
	names := eventTableNames(
		time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC),
	)

	rawSerialized, err := json.Marshal(names)
	if err != nil {
		t.Fatalf("marshal raw names: %v", err)
	}
	info := AbstractTableNames(names, 2)
	abstractSerialized, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal abstraction: %v", err)
	}

	limit := len(rawSerialized) / 10
	if len(abstractSerialized) >= limit {
		t.Fatalf("abstraction is %d bytes, raw is %d bytes; want under 10%%",
			len(abstractSerialized), len(rawSerialized))
	}
}

func TestAbstractTableNamesBucketsIrregularNames(t *testing.T) {
	names := append(eventTableNames(
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
	), "users", "events_intraday", "events_99999999")

	info := AbstractTableNames(names, 2)
	if info.Count != 5 {
		t.Fatalf("Count = %d, want 5", info.Count)
	}
	if len(info.Irregular) != 3 {
		t.Fatalf("Irregular = %v, want 3 entries", info.Irregular)
	}
}

func TestAbstractTableNamesPicksDominantFamily(t *testing.T) {
	names := []string{
		"events_20210101", "events_20210102", "events_20210103",
		"sessions_20210101",
	}
	info := AbstractTableNames(names, 2)
	if info.NamePattern != "events_YYYYMMDD" {
		t.Fatalf("NamePattern = %q", info.NamePattern)
	}
	if len(info.Irregular) != 1 || info.Irregular[0] != "sessions_20210101" {
		t.Fatalf("Irregular = %v", info.Irregular)
	}
}

func TestAbstractTableNamesAllIrregular(t *testing.T) {
	info := AbstractTableNames([]string{"users", "orders"}, 2)
	if info.Count != 0 || info.NamePattern != "" {
		t.Fatalf("info = %+v, want empty family", info)
	}
	if len(info.Irregular) != 2 {
		t.Fatalf("Irregular = %v", info.Irregular)
	}
}

func TestAbstractTableNamesBoundsExamples(t *testing.T) {
	names := eventTableNames(
		time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	info := AbstractTableNames(names, 4)
	if len(info.Examples) != 4 {
		t.Fatalf("len(Examples) = %d, want 4", len(info.Examples))
	}
	if info.Examples[0] != "events_20210101" {
		t.Fatalf("Examples[0] = %q", info.Examples[0])
	}
	if info.Examples[3] != "events_20210131" {
		t.Fatalf("Examples[3] = %q, want the newest table", info.Examples[3])
	}
}

func TestTablesForRangeClampsToKnownRange(t *testing.T) {
	info := EventsTableInfo{
		Count:       5,
		NamePattern: "events_YYYYMMDD",
		DateRange:   DateRange{Start: "2021-01-01", End: "2021-01-05"},
	}
	names := info.TablesForRange(
		time.Date(2020, 12, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC),
	)
	if len(names) != 3 {
		t.Fatalf("names = %v", names)
	}
	if names[0] != "events_20210101" || names[2] != "events_20210103" {
		t.Fatalf("names = %v", names)
	}
}

func TestUnionAllSQL(t *testing.T) {
	info := EventsTableInfo{
		NamePattern: "events_YYYYMMDD",
		DateRange:   DateRange{Start: "2021-01-01", End: "2021-01-31"},
	}

	day := time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := info.UnionAllSQL(day, day); got != "events_20210102" {
		t.Fatalf("single day source = %q", got)
	}

	got := info.UnionAllSQL(day, day.AddDate(0, 0, 1))
	want := "(SELECT * FROM events_20210102 UNION ALL SELECT * FROM events_20210103)"
	if got != want {
		t.Fatalf("range source = %q, want %q", got, want)
	}
}
