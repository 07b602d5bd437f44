package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

const (
	snapshotPrefix     = "metasync/snapshots"
	currentSnapshotKey = "metasync/current.json"
	archivePrefix      = "archive"
)

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// SnapshotKey names one immutable metadata snapshot in the history.
func SnapshotKey(generatedAt time.Time) string {
	return path.Join(snapshotPrefix, generatedAt.UTC().Format("20060102T150405.000000000Z")+".json")
}

// CurrentSnapshotKey is the pointer blob naming the authoritative snapshot.
func CurrentSnapshotKey() string {
	return currentSnapshotKey
}

// SnapshotPrefix is the listing prefix for snapshot history retention.
func SnapshotPrefix() string {
	return snapshotPrefix
}

// ArchiveKey names the parquet archive of one block's execution result.
func ArchiveKey(userID, blockID string, at time.Time) (string, error) {
	if err := validateKeyComponent(userID, "user id"); err != nil {
		return "", err
	}
	if err := validateKeyComponent(blockID, "block id"); err != nil {
		return "", err
	}
	ts := at.UTC()
	return path.Join(
		archivePrefix,
		userID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		blockID+".parquet",
	), nil
}

func validateKeyComponent(value, field string) error {
	if !keyComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
