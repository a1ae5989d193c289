package store

import (
	"context"
	"errors"
	"fmt"

	"stagequeue/internal/requests"
)

// ErrNotFound is requests.ErrNotFound, re-exported for store callers.
var ErrNotFound = requests.ErrNotFound

// ErrConditionFailed reports that a conditional write matched an existing
// request whose status was not in the allowed set.
var ErrConditionFailed = errors.New("request status precondition failed")

// ErrPlayingConflict reports that promoting a request to playing collided
// with another request that is already playing.
var ErrPlayingConflict = errors.New("another request is already playing")

// ConditionError carries the status observed when a conditional write failed.
type ConditionError struct {
	ID      string
	Current requests.Status
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("request %s is %s: %v", e.ID, e.Current, ErrConditionFailed)
}

func (e *ConditionError) Unwrap() error { return ErrConditionFailed }

// HistoryLimit caps the history predicate.
const HistoryLimit = 50

// Filter selects requests for queries and subscriptions.
type Filter struct {
	Statuses   []requests.Status
	Descending bool
	Limit      int
}

// ActiveFilter matches pending, queued, and playing requests.
func ActiveFilter() Filter {
	return Filter{Statuses: requests.ActiveStatuses()}
}

// DisplayFilter matches what the public screen shows.
func DisplayFilter() Filter {
	return Filter{Statuses: []requests.Status{requests.StatusQueued, requests.StatusPlaying}}
}

// HistoryFilter matches the most recent terminal requests, newest first.
func HistoryFilter() Filter {
	return Filter{Statuses: requests.HistoryStatuses(), Descending: true, Limit: HistoryLimit}
}

// AllFilter matches every request.
func AllFilter() Filter {
	return Filter{}
}

// Delta is a field-level update. Nil fields are left untouched.
type Delta struct {
	Status     *requests.Status
	Song       *string
	Artist     *string
	YouTubeURL *string
}

// IsEmpty reports whether the delta changes nothing.
func (d Delta) IsEmpty() bool {
	return d.Status == nil && d.Song == nil && d.Artist == nil && d.YouTubeURL == nil
}

// StatusDelta builds a delta that only moves status.
func StatusDelta(status requests.Status) Delta {
	return Delta{Status: &status}
}

// Condition restricts a write to requests currently in one of Statuses. An
// empty condition matches any status.
type Condition struct {
	Statuses []requests.Status
}

// When builds a condition.
func When(statuses ...requests.Status) Condition {
	return Condition{Statuses: statuses}
}

// Store is the contract the core depends on.
type Store interface {
	// Create inserts a pending request. The store assigns ID and CreatedAt.
	Create(ctx context.Context, req requests.Request) (requests.Request, error)
	Get(ctx context.Context, id string) (requests.Request, error)
	Update(ctx context.Context, id string, delta Delta, cond Condition) (requests.Request, error)
	// Promote makes id the only playing request, completing the current one
	// in the same atomic write.
	Promote(ctx context.Context, id string) (promoted requests.Request, demoted []string, err error)
	Delete(ctx context.Context, id string, cond Condition) error
	// DeleteMany removes ids as one atomic unit.
	DeleteMany(ctx context.Context, ids []string) (int64, error)
	// ListIDs is a one-shot read of matching ids.
	ListIDs(ctx context.Context, filter Filter) ([]string, error)
	Query(ctx context.Context, filter Filter) ([]requests.Request, error)
	Subscribe(ctx context.Context, filter Filter) (*Subscription[[]requests.Request], error)

	Settings(ctx context.Context) (requests.Settings, error)
	SaveSettings(ctx context.Context, settings requests.Settings) error
	SubscribeSettings(ctx context.Context) (*Subscription[requests.Settings], error)
}
