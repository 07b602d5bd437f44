package storage

import (
	"strings"
	"testing"
	"time"
)

func TestSnapshotKeyIsSortable(t *testing.T) {
	earlier := SnapshotKey(time.Date(2021, 1, 10, 9, 0, 0, 0, time.UTC))
	later := SnapshotKey(time.Date(2021, 1, 10, 9, 0, 1, 0, time.UTC))
	if !(earlier < later) {
		t.Fatalf("keys not lexically ordered: %q >= %q", earlier, later)
	}
	if !strings.HasPrefix(earlier, SnapshotPrefix()) {
		t.Fatalf("key %q missing snapshot prefix", earlier)
	}
}

func TestArchiveKeyLayout(t *testing.T) {
	key, err := ArchiveKey("alice", "b1", time.Date(2021, 1, 10, 23, 59, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ArchiveKey() error = %v", err)
	}
	want := "archive/alice/date=2021-01-10/b1.parquet"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestArchiveKeyRejectsUnsafeComponents(t *testing.T) {
	if _, err := ArchiveKey("../etc", "b1", time.Now()); err == nil {
		t.Fatal("expected user id validation error")
	}
	if _, err := ArchiveKey("alice", "a/b", time.Now()); err == nil {
		t.Fatal("expected block id validation error")
	}
}
