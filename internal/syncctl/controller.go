package syncctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"stagequeue/internal/logging"
	"stagequeue/internal/projection"
	"stagequeue/internal/requests"
	"stagequeue/internal/store"
)

// Feed supplies live whole-set snapshots. The local store and the daemon API
// client both satisfy it.
type Feed interface {
	Subscribe(ctx context.Context, filter store.Filter) (*store.Subscription[[]requests.Request], error)
	SubscribeSettings(ctx context.Context) (*store.Subscription[requests.Settings], error)
}

// State is what a consumer renders.
type State struct {
	Views    projection.Views
	Settings requests.Settings
	// Revision is the highest feed revision folded into this state.
	Revision       uint64
	ShowingHistory bool
	// Synced is false until the first active snapshot arrives.
	Synced bool
}

// Observer receives every new State on the controller's event loop.
type Observer func(State)

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers fn for state changes.
func WithObserver(fn Observer) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.NewComponentLogger(logger, "syncctl")
	}
}

// WithHistory starts with the history subscription open.
func WithHistory(on bool) Option {
	return func(c *Controller) {
		c.history = on
	}
}

// Controller owns one consumer's subscriptions and keeps its projected views
// current. All snapshot handling runs on a single event loop.
type Controller struct {
	feed     Feed
	role     projection.Role
	observer Observer
	logger   *slog.Logger
	history  bool

	lastWarnings []string

	ctx    context.Context
	cancel context.CancelFunc
	toggle chan bool
	done   chan struct{}

	mu      sync.RWMutex
	current State
}

// New opens the active and settings subscriptions for role and starts the
// event loop. The marketing role always has history on.
func New(ctx context.Context, feed Feed, role projection.Role, opts ...Option) (*Controller, error) {
	if feed == nil {
		return nil, errors.New("syncctl: feed is required")
	}
	c := &Controller{
		feed:   feed,
		role:   role,
		logger: logging.NewComponentLogger(nil, "syncctl"),
		toggle: make(chan bool),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if role == projection.RoleMarketing {
		c.history = true
	}
	if role == projection.RoleDisplay {
		c.history = false
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	active, err := feed.Subscribe(c.ctx, activeFilter(role))
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("subscribe active requests: %w", err)
	}
	settings, err := feed.SubscribeSettings(c.ctx)
	if err != nil {
		active.Close()
		c.cancel()
		return nil, fmt.Errorf("subscribe settings: %w", err)
	}
	var history *store.Subscription[[]requests.Request]
	if c.history {
		if history, err = feed.Subscribe(c.ctx, store.HistoryFilter()); err != nil {
			active.Close()
			settings.Close()
			c.cancel()
			return nil, fmt.Errorf("subscribe history: %w", err)
		}
	}

	c.current = State{
		Views:          projection.Project(nil).ForRole(role),
		Settings:       requests.Settings{Theme: requests.ThemeDefault},
		ShowingHistory: c.history,
	}
	go c.run(active, settings, history)
	return c, nil
}

func activeFilter(role projection.Role) store.Filter {
	if role == projection.RoleDisplay {
		return store.DisplayFilter()
	}
	return store.ActiveFilter()
}

// Current returns the latest state.
func (c *Controller) Current() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// ShowHistory opens or closes the history subscription. The display role
// never shows history and the marketing role never hides it.
func (c *Controller) ShowHistory(on bool) {
	select {
	case c.toggle <- on:
	case <-c.done:
	}
}

// Close releases every subscription and waits for the event loop to exit.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

// Done is closed once the event loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

type loopState struct {
	active   []requests.Request
	history  []requests.Request
	settings requests.Settings
	revision uint64
	synced   bool
}

func (c *Controller) run(active *store.Subscription[[]requests.Request], settings *store.Subscription[requests.Settings], history *store.Subscription[[]requests.Request]) {
	defer close(c.done)
	defer func() {
		active.Close()
		settings.Close()
		history.Close()
	}()

	st := loopState{settings: requests.Settings{Theme: requests.ThemeDefault}}
	activeC, settingsC := active.C, settings.C
	var historyC <-chan store.Snapshot[[]requests.Request]
	if history != nil {
		historyC = history.C
	}

	for {
		select {
		case <-c.ctx.Done():
			return

		case snap, ok := <-activeC:
			if !ok {
				c.feedEnded("active", active.Err())
				activeC = nil
				continue
			}
			st.active = snap.Data
			st.synced = true
			st.revision = max(st.revision, snap.Revision)

		case snap, ok := <-historyC:
			if !ok {
				c.feedEnded("history", history.Err())
				history.Close()
				history, historyC = nil, nil
				st.history = nil
				c.history = false
				break
			}
			st.history = snap.Data
			st.revision = max(st.revision, snap.Revision)

		case snap, ok := <-settingsC:
			if !ok {
				c.feedEnded("settings", settings.Err())
				settingsC = nil
				continue
			}
			st.settings = snap.Data
			st.revision = max(st.revision, snap.Revision)

		case on := <-c.toggle:
			on = c.historyAllowed(on)
			if on == (history != nil) {
				continue
			}
			if on {
				sub, err := c.feed.Subscribe(c.ctx, store.HistoryFilter())
				if err != nil {
					logging.WarnWithContext(c.logger, "history subscription failed", "history_subscribe_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "history view stays empty"),
						logging.String(logging.FieldErrorHint, "toggle history again once the daemon is reachable"))
					continue
				}
				history, historyC = sub, sub.C
			} else {
				history.Close()
				history, historyC = nil, nil
				st.history = nil
			}
			c.history = on
		}

		c.publish(st)
	}
}

func (c *Controller) historyAllowed(on bool) bool {
	switch c.role {
	case projection.RoleDisplay:
		return false
	case projection.RoleMarketing:
		return true
	default:
		return on
	}
}

func (c *Controller) publish(st loopState) {
	next := State{
		Views:          projection.Project(merge(st.active, st.history)).ForRole(c.role),
		Settings:       st.settings,
		Revision:       st.revision,
		ShowingHistory: c.history,
		Synced:         st.synced,
	}
	// Only log warnings when they change, not on every snapshot.
	if !slices.Equal(next.Views.Warnings, c.lastWarnings) {
		c.lastWarnings = next.Views.Warnings
		for _, warning := range next.Views.Warnings {
			c.warn(warning)
		}
	}

	c.mu.Lock()
	c.current = next
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(next)
	}
}

// merge unions the active and history sets. The two feeds are observed
// independently, so a request that just finished can briefly sit in both;
// the most recently updated copy wins.
func merge(active, history []requests.Request) []requests.Request {
	if len(history) == 0 {
		return active
	}
	byID := make(map[string]int, len(active)+len(history))
	all := make([]requests.Request, 0, len(active)+len(history))
	for _, set := range [][]requests.Request{active, history} {
		for _, req := range set {
			if i, ok := byID[req.ID]; ok {
				if req.UpdatedAt.After(all[i].UpdatedAt) {
					all[i] = req
				}
				continue
			}
			byID[req.ID] = len(all)
			all = append(all, req)
		}
	}
	return all
}

func (c *Controller) warn(warning string) {
	logging.WarnWithContext(c.logger, "projection integrity warning", "multiple_playing",
		logging.String("detail", warning),
		logging.String(logging.FieldImpact, "now playing shows the earliest request"),
		logging.String(logging.FieldErrorHint, "mark the extra request done"))
}

func (c *Controller) feedEnded(name string, err error) {
	if c.ctx.Err() != nil {
		return
	}
	logging.WarnWithContext(c.logger, "subscription ended", "subscription_ended",
		logging.String("feed", name),
		logging.Error(err),
		logging.String(logging.FieldImpact, "view stops updating"),
		logging.String(logging.FieldErrorHint, "restart the consumer"))
}
