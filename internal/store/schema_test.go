package store_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"stagequeue/internal/requests"
	"stagequeue/internal/store"
)

func execRaw(t *testing.T, path string, query string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func userVersion(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	return version
}

func TestOpenRebuildsOnlyEmptyForeignSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "requests.db")

	s, err := store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Create(ctx, requests.Request{SingerName: "Alex", Song: "Angels", Artist: "Robbie Williams", BackingTrack: requests.BackingKaraoke}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.Close()
	if got := userVersion(t, path); got != 1 {
		t.Fatalf("expected user_version 1, got %d", got)
	}

	execRaw(t, path, "PRAGMA user_version = 7")
	if _, err := store.Open(path, nil); !errors.Is(err, store.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch while requests remain, got %v", err)
	}

	execRaw(t, path, "DELETE FROM requests")
	s, err = store.Open(path, nil)
	if err != nil {
		t.Fatalf("Open after reset: %v", err)
	}
	defer s.Close()
	if got := userVersion(t, path); got != 1 {
		t.Fatalf("expected rebuilt user_version 1, got %d", got)
	}
	if _, err := s.Create(ctx, requests.Request{SingerName: "Sam", Song: "Valerie", Artist: "Amy Winehouse", BackingTrack: requests.BackingKaraoke}); err != nil {
		t.Fatalf("Create after rebuild: %v", err)
	}
}
