package testsupport

import (
	"context"
	"testing"

	"stagequeue/internal/config"
	"stagequeue/internal/requests"
	"stagequeue/internal/store"
)

// MustOpenStore opens a SQLite store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.SQLite {
	t.Helper()

	s, err := store.Open(cfg.DatabasePath(), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewRequest inserts a pending request for singer performing song by artist.
func NewRequest(t testing.TB, s store.Store, singer, song, artist string) requests.Request {
	t.Helper()

	draft := requests.Draft{SingerName: singer, Song: song, Artist: artist}
	req, err := draft.Normalize()
	if err != nil {
		t.Fatalf("draft.Normalize: %v", err)
	}
	created, err := s.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return created
}

// ForceStatus moves a request to status without lifecycle checks.
func ForceStatus(t testing.TB, s store.Store, id string, status requests.Status, url string) requests.Request {
	t.Helper()

	delta := store.StatusDelta(status)
	if url != "" {
		delta.YouTubeURL = &url
	}
	updated, err := s.Update(context.Background(), id, delta, store.Condition{})
	if err != nil {
		t.Fatalf("store.Update(%s -> %s): %v", id, status, err)
	}
	return updated
}
