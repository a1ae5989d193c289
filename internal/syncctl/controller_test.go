package syncctl_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stagequeue/internal/lifecycle"
	"stagequeue/internal/projection"
	"stagequeue/internal/requests"
	"stagequeue/internal/store"
	"stagequeue/internal/syncctl"
	"stagequeue/internal/testsupport"
)

func setup(t *testing.T) (*lifecycle.Engine, *store.SQLite) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	return lifecycle.NewEngine(s), s
}

func newController(t *testing.T, feed syncctl.Feed, role projection.Role, opts ...syncctl.Option) *syncctl.Controller {
	t.Helper()
	ctl, err := syncctl.New(context.Background(), feed, role, opts...)
	if err != nil {
		t.Fatalf("syncctl.New: %v", err)
	}
	t.Cleanup(ctl.Close)
	return ctl
}

func waitState(t *testing.T, ctl *syncctl.Controller, desc string, match func(syncctl.State) bool) syncctl.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state := ctl.Current()
		if state.Synced && match(state) {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state: %#v", desc, state.Views)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOperatorScenario(t *testing.T) {
	engine, s := setup(t)
	ctx := context.Background()
	ctl := newController(t, s, projection.RoleOperator, syncctl.WithHistory(true))

	alex, err := engine.Submit(ctx, requests.Draft{SingerName: "Alex", Song: "Angels", Artist: "Robbie Williams"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, ctl, "alex pending", func(st syncctl.State) bool {
		return len(st.Views.Pending) == 1 && st.Views.Pending[0].ID == alex.ID && st.Views.Pending[0].Status == requests.StatusPending
	})

	if _, err := engine.Approve(ctx, alex.ID, "https://youtu.be/abc"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	waitState(t, ctl, "alex up next at 1", func(st syncctl.State) bool {
		return len(st.Views.Pending) == 0 && len(st.Views.UpNext) == 1 &&
			st.Views.UpNext[0].Position == 1 && st.Views.UpNext[0].Request.Status == requests.StatusQueued
	})

	if _, err := engine.Play(ctx, alex.ID); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitState(t, ctl, "alex playing", func(st syncctl.State) bool {
		return st.Views.NowPlaying != nil && st.Views.NowPlaying.ID == alex.ID && len(st.Views.UpNext) == 0
	})

	sam, err := engine.Submit(ctx, requests.Draft{SingerName: "Sam", Song: "Valerie", Artist: "Amy Winehouse"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitState(t, ctl, "sam pending alongside alex", func(st syncctl.State) bool {
		return len(st.Views.Pending) == 1 && st.Views.Pending[0].ID == sam.ID &&
			st.Views.NowPlaying != nil && st.Views.NowPlaying.ID == alex.ID
	})

	if _, err := engine.Approve(ctx, sam.ID, "https://youtu.be/def"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := engine.Play(ctx, sam.ID); err != nil {
		t.Fatalf("Play: %v", err)
	}
	final := waitState(t, ctl, "sam playing and alex in history", func(st syncctl.State) bool {
		return st.Views.NowPlaying != nil && st.Views.NowPlaying.ID == sam.ID &&
			len(st.Views.History) == 1 && st.Views.History[0].ID == alex.ID
	})
	if final.Views.History[0].Status != requests.StatusCompleted {
		t.Fatalf("expected alex completed, got %s", final.Views.History[0].Status)
	}
	if len(final.Views.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", final.Views.Warnings)
	}
}

func TestHistoryToggle(t *testing.T) {
	engine, s := setup(t)
	ctx := context.Background()

	req, err := engine.Submit(ctx, requests.Draft{SingerName: "Alex", Song: "Angels", Artist: "Robbie Williams"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := engine.Reject(ctx, req.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	ctl := newController(t, s, projection.RoleOperator)
	state := waitState(t, ctl, "initial sync", func(syncctl.State) bool { return true })
	if state.ShowingHistory || len(state.Views.History) != 0 {
		t.Fatalf("history should start off: %#v", state)
	}

	ctl.ShowHistory(true)
	waitState(t, ctl, "history shown", func(st syncctl.State) bool {
		return st.ShowingHistory && len(st.Views.History) == 1
	})

	ctl.ShowHistory(false)
	waitState(t, ctl, "history hidden", func(st syncctl.State) bool {
		return !st.ShowingHistory && len(st.Views.History) == 0
	})
}

// droppingHistoryFeed ends its first history subscription right away and
// serves every later one from the store.
type droppingHistoryFeed struct {
	*store.SQLite

	mu      sync.Mutex
	history int
}

func (f *droppingHistoryFeed) Subscribe(ctx context.Context, filter store.Filter) (*store.Subscription[[]requests.Request], error) {
	if !filter.Descending {
		return f.SQLite.Subscribe(ctx, filter)
	}
	f.mu.Lock()
	f.history++
	first := f.history == 1
	f.mu.Unlock()
	if !first {
		return f.SQLite.Subscribe(ctx, filter)
	}
	return store.NewSubscription(ctx, func(context.Context, func(store.Snapshot[[]requests.Request])) error {
		return errors.New("history feed dropped")
	}), nil
}

func TestHistoryResubscribesAfterFeedEnds(t *testing.T) {
	engine, s := setup(t)
	ctx := context.Background()

	req, err := engine.Submit(ctx, requests.Draft{SingerName: "Alex", Song: "Angels", Artist: "Robbie Williams"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := engine.Reject(ctx, req.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	states := make(chan syncctl.State, 64)
	feed := &droppingHistoryFeed{SQLite: s}
	ctl := newController(t, feed, projection.RoleOperator, syncctl.WithObserver(func(st syncctl.State) {
		select {
		case states <- st:
		default:
		}
	}))
	waitState(t, ctl, "initial sync", func(syncctl.State) bool { return true })

	ctl.ShowHistory(true)
	shown := false
	timeout := time.After(2 * time.Second)
	for ended := false; !ended; {
		select {
		case st := <-states:
			if st.ShowingHistory {
				shown = true
			} else if shown {
				ended = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for the dropped history feed to be noticed")
		}
	}

	ctl.ShowHistory(true)
	waitState(t, ctl, "history shown again", func(st syncctl.State) bool {
		return st.ShowingHistory && len(st.Views.History) == 1 && st.Views.History[0].ID == req.ID
	})
}

func TestDisplayRoleSeesOnlyQueueAndPlaying(t *testing.T) {
	engine, s := setup(t)
	ctx := context.Background()

	pending, _ := engine.Submit(ctx, requests.Draft{SingerName: "A", Song: "One", Artist: "X"})
	queued, _ := engine.Submit(ctx, requests.Draft{SingerName: "B", Song: "Two", Artist: "Y"})
	if _, err := engine.Approve(ctx, queued.ID, "https://youtu.be/two"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	ctl := newController(t, s, projection.RoleDisplay)
	ctl.ShowHistory(true)
	state := waitState(t, ctl, "display sync", func(st syncctl.State) bool { return len(st.Views.UpNext) == 1 })
	if len(state.Views.Pending) != 0 {
		t.Fatalf("display must not see pending request %s", pending.ID)
	}
	if state.ShowingHistory {
		t.Fatal("display must never show history")
	}
}

func TestMarketingRoleAlwaysShowsHistory(t *testing.T) {
	_, s := setup(t)
	ctl := newController(t, s, projection.RoleMarketing)
	ctl.ShowHistory(false)
	state := waitState(t, ctl, "marketing sync", func(syncctl.State) bool { return true })
	if !state.ShowingHistory {
		t.Fatal("marketing must keep history on")
	}
}

func TestSettingsFollowTheme(t *testing.T) {
	engine, s := setup(t)
	states := make(chan syncctl.State, 16)
	ctl := newController(t, s, projection.RoleDisplay, syncctl.WithObserver(func(st syncctl.State) {
		select {
		case states <- st:
		default:
		}
	}))

	if _, err := engine.SetTheme(context.Background(), "orange"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	waitState(t, ctl, "orange theme", func(st syncctl.State) bool { return st.Settings.Theme == requests.ThemeOrange })
	if len(states) == 0 {
		t.Fatal("observer was never called")
	}
}

func TestCloseStopsLoop(t *testing.T) {
	_, s := setup(t)
	ctl, err := syncctl.New(context.Background(), s, projection.RoleOperator)
	if err != nil {
		t.Fatalf("syncctl.New: %v", err)
	}
	ctl.Close()
	select {
	case <-ctl.Done():
	default:
		t.Fatal("event loop still running after Close")
	}
	ctl.ShowHistory(true)
}
