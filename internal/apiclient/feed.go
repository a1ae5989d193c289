package apiclient

import (
	"context"
	"fmt"
	"slices"
	"time"

	"stagequeue/internal/api"
	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
	"stagequeue/internal/store"
)

// Subscribe turns the daemon's long-poll feed for filter into a local
// subscription. Only the filters the daemon serves are accepted. The first
// snapshot is fetched before returning so an unreachable daemon fails fast.
func (c *Client) Subscribe(ctx context.Context, filter store.Filter) (*store.Subscription[[]requests.Request], error) {
	view, err := viewFor(filter)
	if err != nil {
		return nil, err
	}
	load := func(ctx context.Context, since FeedCursor, wait bool) (store.Snapshot[[]requests.Request], string, error) {
		feed, err := c.RequestFeed(ctx, view, since, wait)
		if err != nil {
			return store.Snapshot[[]requests.Request]{}, "", err
		}
		list, err := api.ToRequests(feed.Requests)
		if err != nil {
			return store.Snapshot[[]requests.Request]{}, "", err
		}
		return store.Snapshot[[]requests.Request]{Revision: feed.Revision, Data: list}, feed.Epoch, nil
	}
	return subscribe(ctx, c, "requests:"+view, load)
}

// SubscribeSettings turns the daemon's settings feed into a local
// subscription.
func (c *Client) SubscribeSettings(ctx context.Context) (*store.Subscription[requests.Settings], error) {
	load := func(ctx context.Context, since FeedCursor, wait bool) (store.Snapshot[requests.Settings], string, error) {
		feed, err := c.SettingsFeed(ctx, since, wait)
		if err != nil {
			return store.Snapshot[requests.Settings]{}, "", err
		}
		return store.Snapshot[requests.Settings]{Revision: feed.Revision, Data: api.ToSettings(feed.Settings)}, feed.Epoch, nil
	}
	return subscribe(ctx, c, "settings", load)
}

// pollFunc fetches one snapshot newer than since and reports the daemon
// epoch it came from.
type pollFunc[T any] func(ctx context.Context, since FeedCursor, wait bool) (store.Snapshot[T], string, error)

// subscribe polls until ctx ends. Failed polls are logged and retried after
// retryDelay; the subscription only ends when ctx does. A new daemon epoch
// always produces a snapshot, even when its revision matches the old one.
func subscribe[T any](ctx context.Context, c *Client, name string, load pollFunc[T]) (*store.Subscription[T], error) {
	first, epoch, err := load(ctx, FeedCursor{}, false)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}
	return store.NewSubscription(ctx, func(ctx context.Context, emit func(store.Snapshot[T])) error {
		emit(first)
		since := FeedCursor{Epoch: epoch, Revision: first.Revision}
		failures := 0
		for {
			snap, epoch, err := load(ctx, since, true)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failures++
				if failures == 1 {
					logging.WarnWithContext(c.logger, "feed poll failed", "feed_poll_failed",
						logging.String("feed", name),
						logging.Error(err),
						logging.String(logging.FieldImpact, "views may be stale until the daemon answers"),
						logging.String(logging.FieldErrorHint, "check that stagequeued is running"))
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(c.retryDelay):
				}
				continue
			}
			if failures > 0 {
				c.logger.Info("feed poll recovered", logging.String("feed", name), logging.Int("failures", failures))
				failures = 0
			}
			if epoch != since.Epoch {
				c.logger.Info("daemon restarted, feed resynced", logging.String("feed", name), logging.Int64("revision", int64(snap.Revision)))
			}
			if epoch != since.Epoch || snap.Revision != since.Revision {
				emit(snap)
				since = FeedCursor{Epoch: epoch, Revision: snap.Revision}
			}
		}
	}), nil
}

func viewFor(filter store.Filter) (string, error) {
	views := []struct {
		name   string
		filter store.Filter
	}{
		{"active", store.ActiveFilter()},
		{"display", store.DisplayFilter()},
		{"history", store.HistoryFilter()},
	}
	for _, v := range views {
		if slices.Equal(v.filter.Statuses, filter.Statuses) &&
			v.filter.Descending == filter.Descending &&
			v.filter.Limit == filter.Limit {
			return v.name, nil
		}
	}
	return "", requests.Invalid("filter", "is not served by the daemon feed")
}
