package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"stagequeue/internal/requests"
	"stagequeue/internal/store"
	"stagequeue/internal/testsupport"
)

func TestCreateAssignsIDAndMonotonicCreatedAt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)

	first := testsupport.NewRequest(t, s, "Alex", "Angels", "Robbie Williams")
	second := testsupport.NewRequest(t, s, "Sam", "Valerie", "Amy Winehouse")

	if first.ID == "" || second.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct ids, got %q and %q", first.ID, second.ID)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Fatalf("expected strictly increasing created_at: %s then %s", first.CreatedAt, second.CreatedAt)
	}
	if first.Status != requests.StatusPending {
		t.Fatalf("expected pending, got %s", first.Status)
	}

	fetched, err := s.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fetched.CreatedAt.Equal(first.CreatedAt) || fetched.Song != "Angels" {
		t.Fatalf("unexpected fetched request: %#v", fetched)
	}
}

func TestCreateClearsTechnicalNeedsUnlessNoBacking(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	req := requests.Request{SingerName: "A", Song: "S", Artist: "B", BackingTrack: requests.BackingKaraoke, TechnicalNeeds: "mic stand"}
	created, err := s.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.TechnicalNeeds != "" {
		t.Fatalf("expected technical needs cleared, got %q", created.TechnicalNeeds)
	}

	req.BackingTrack = requests.BackingNone
	created, err = s.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	fetched, _ := s.Get(ctx, created.ID)
	if fetched.TechnicalNeeds != "mic stand" {
		t.Fatalf("expected technical needs kept, got %q", fetched.TechnicalNeeds)
	}
}

func TestUpdateConditionFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	req := testsupport.NewRequest(t, s, "Alex", "Angels", "Robbie Williams")

	_, err := s.Update(ctx, "missing", store.StatusDelta(requests.StatusQueued), store.When(requests.StatusPending))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	updated, err := s.Update(ctx, req.ID, store.StatusDelta(requests.StatusQueued), store.When(requests.StatusPending))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != requests.StatusQueued {
		t.Fatalf("expected queued, got %s", updated.Status)
	}

	_, err = s.Update(ctx, req.ID, store.StatusDelta(requests.StatusQueued), store.When(requests.StatusPending))
	var condErr *store.ConditionError
	if !errors.As(err, &condErr) || !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("expected condition error, got %v", err)
	}
	if condErr.Current != requests.StatusQueued {
		t.Fatalf("expected current status queued, got %s", condErr.Current)
	}
}

func TestSinglePlayingIndex(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewRequest(t, s, "A", "One", "X")
	b := testsupport.NewRequest(t, s, "B", "Two", "Y")
	testsupport.ForceStatus(t, s, a.ID, requests.StatusPlaying, "https://youtu.be/a")

	_, err := s.Update(ctx, b.ID, store.StatusDelta(requests.StatusPlaying), store.Condition{})
	if !errors.Is(err, store.ErrPlayingConflict) {
		t.Fatalf("expected playing conflict, got %v", err)
	}
}

func TestPromoteIsAllOrNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	current := testsupport.NewRequest(t, s, "A", "One", "X")
	next := testsupport.NewRequest(t, s, "B", "Two", "Y")
	gone := testsupport.NewRequest(t, s, "C", "Three", "Z")
	testsupport.ForceStatus(t, s, current.ID, requests.StatusPlaying, "https://youtu.be/a")
	testsupport.ForceStatus(t, s, next.ID, requests.StatusQueued, "https://youtu.be/b")
	testsupport.ForceStatus(t, s, gone.ID, requests.StatusRejected, "https://youtu.be/c")

	before := s.Revision()
	_, _, err := s.Promote(ctx, gone.ID)
	var condErr *store.ConditionError
	if !errors.As(err, &condErr) || condErr.Current != requests.StatusRejected {
		t.Fatalf("expected condition error from rejected, got %v", err)
	}
	if _, _, err := s.Promote(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	still, _ := s.Get(ctx, current.ID)
	if still.Status != requests.StatusPlaying {
		t.Fatalf("failed promotion must keep the current request playing, got %s", still.Status)
	}
	if s.Revision() != before {
		t.Fatalf("failed promotion must not advance the revision")
	}

	promoted, demoted, err := s.Promote(ctx, next.ID)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promoted.Status != requests.StatusPlaying {
		t.Fatalf("expected playing, got %s", promoted.Status)
	}
	if len(demoted) != 1 || demoted[0] != current.ID {
		t.Fatalf("expected %s demoted, got %v", current.ID, demoted)
	}
	replaced, _ := s.Get(ctx, current.ID)
	if replaced.Status != requests.StatusCompleted {
		t.Fatalf("expected previous request completed, got %s", replaced.Status)
	}
}

func TestQueryOrderingAndLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		req := testsupport.NewRequest(t, s, "Singer", "Song", "Artist")
		testsupport.ForceStatus(t, s, req.ID, requests.StatusCompleted, "")
		ids = append(ids, req.ID)
	}

	got, err := s.Query(ctx, store.Filter{Statuses: requests.HistoryStatuses(), Descending: true, Limit: 3})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	for i, want := range []string{ids[4], ids[3], ids[2]} {
		if got[i].ID != want {
			t.Fatalf("row %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
}

func TestDeleteAndDeleteMany(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewRequest(t, s, "A", "One", "X")
	b := testsupport.NewRequest(t, s, "B", "Two", "Y")
	c := testsupport.NewRequest(t, s, "C", "Three", "Z")
	testsupport.ForceStatus(t, s, c.ID, requests.StatusRejected, "")

	if err := s.Delete(ctx, c.ID, store.When(requests.StatusPending, requests.StatusQueued)); !errors.Is(err, store.ErrConditionFailed) {
		t.Fatalf("expected terminal delete to fail condition, got %v", err)
	}
	if err := s.Delete(ctx, a.ID, store.When(requests.StatusPending)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted request to be gone, got %v", err)
	}

	deleted, err := s.DeleteMany(ctx, []string{b.ID, c.ID, "missing"})
	if err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	ids, err := s.ListIDs(ctx, store.AllFilter())
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty store, got %v", ids)
	}
}

func TestSubscribeDeliversTotalSnapshots(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, store.ActiveFilter())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	initial := nextSnapshot(t, sub.C)
	if len(initial.Data) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(initial.Data))
	}

	req := testsupport.NewRequest(t, s, "Alex", "Angels", "Robbie Williams")
	snap := waitFor(t, sub.C, func(data []requests.Request) bool { return len(data) == 1 })
	if snap.Data[0].ID != req.ID {
		t.Fatalf("unexpected snapshot: %#v", snap.Data)
	}
	if snap.Revision <= initial.Revision {
		t.Fatalf("expected revision to advance: %d -> %d", initial.Revision, snap.Revision)
	}

	testsupport.ForceStatus(t, s, req.ID, requests.StatusRejected, "")
	waitFor(t, sub.C, func(data []requests.Request) bool { return len(data) == 0 })
}

func TestSubscriptionCloseEndsStream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)

	sub, err := s.Subscribe(context.Background(), store.ActiveFilter())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	nextSnapshot(t, sub.C)
	sub.Close()

	select {
	case _, ok := <-sub.C:
		if ok {
			// A final buffered snapshot may still be pending; the channel must close after it.
			if _, ok := <-sub.C; ok {
				t.Fatal("expected channel closed after Close")
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Close")
	}
	if !errors.Is(sub.Err(), store.ErrSubscriptionClosed) {
		t.Fatalf("expected closed error, got %v", sub.Err())
	}
}

func TestSettingsDefaultAndSave(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	settings, err := s.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if settings.Theme != requests.ThemeDefault {
		t.Fatalf("expected default theme, got %s", settings.Theme)
	}

	sub, err := s.SubscribeSettings(ctx)
	if err != nil {
		t.Fatalf("SubscribeSettings: %v", err)
	}
	defer sub.Close()
	nextSnapshot(t, sub.C)

	if err := s.SaveSettings(ctx, requests.Settings{Theme: requests.ThemeChristmas}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	waitFor(t, sub.C, func(data requests.Settings) bool { return data.Theme == requests.ThemeChristmas })

	if err := s.SaveSettings(ctx, requests.Settings{Theme: "neon"}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	settings, _ = s.Settings(ctx)
	if settings.Theme != requests.ThemeDefault {
		t.Fatalf("expected unknown theme stored as default, got %s", settings.Theme)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRequest(t, s, "A", "B", "C")

	health, err := s.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.TotalRequests != 1 {
		t.Fatalf("expected 1 request, got %d", health.TotalRequests)
	}
}

func nextSnapshot[T any](t *testing.T, ch <-chan store.Snapshot[T]) store.Snapshot[T] {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return store.Snapshot[T]{}
}

func waitFor[T any](t *testing.T, ch <-chan store.Snapshot[T], match func(T) bool) store.Snapshot[T] {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed unexpectedly")
			}
			if match(snap.Data) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return store.Snapshot[T]{}
		}
	}
}
