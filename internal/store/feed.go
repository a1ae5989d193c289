package store

import (
	"context"
	"errors"
	"sync"
)

// Snapshot is a total view of a subscription's predicate at one revision.
type Snapshot[T any] struct {
	Revision uint64
	Data     T
}

// ErrSubscriptionClosed is returned by Err after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscription is a cancellable stream of whole-set snapshots. Delivery is
// coalescing: a slow reader only ever sees the latest snapshot.
type Subscription[T any] struct {
	C <-chan Snapshot[T]

	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Producer runs until ctx ends, calling emit for each snapshot. A returned
// error other than ctx's own is recorded on the subscription.
type Producer[T any] func(ctx context.Context, emit func(Snapshot[T])) error

// NewSubscription starts produce in its own goroutine and returns the
// subscription that carries its snapshots.
func NewSubscription[T any](ctx context.Context, produce Producer[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan Snapshot[T], 1)
	sub := &Subscription[T]{C: out, cancel: cancel, done: make(chan struct{})}

	emit := func(snap Snapshot[T]) {
		select {
		case out <- snap:
			return
		default:
		}
		// Replace the unread snapshot; this goroutine is the only sender.
		select {
		case <-out:
		default:
		}
		select {
		case out <- snap:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(sub.done)
		defer close(out)
		err := produce(ctx, emit)
		if err != nil && ctx.Err() == nil {
			sub.setErr(err)
		}
	}()
	return sub
}

// Close stops the producer and waits for it to exit.
func (s *Subscription[T]) Close() error {
	if s == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.mu.Lock()
	if s.err == nil {
		s.err = ErrSubscriptionClosed
	}
	s.mu.Unlock()
	return nil
}

// Done is closed once the producer exits.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the stream, if any.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// revisionFeed counts committed mutations and wakes waiters when the count
// moves.
type revisionFeed struct {
	mu   sync.Mutex
	cond *sync.Cond
	rev  uint64
}

func newRevisionFeed() *revisionFeed {
	f := &revisionFeed{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *revisionFeed) bump() uint64 {
	f.mu.Lock()
	f.rev++
	rev := f.rev
	f.cond.Broadcast()
	f.mu.Unlock()
	return rev
}

func (f *revisionFeed) current() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rev
}

// wait blocks until the revision exceeds since or ctx ends.
func (f *revisionFeed) wait(ctx context.Context, since uint64) (uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		f.mu.Lock()
		f.cond.Broadcast()
		f.mu.Unlock()
	})
	defer stop()

	f.mu.Lock()
	defer f.mu.Unlock()
	for f.rev <= since {
		if err := ctx.Err(); err != nil {
			return f.rev, err
		}
		f.cond.Wait()
	}
	return f.rev, nil
}

// watch produces a snapshot of load at the current revision and again after
// every later revision. Load failures are retried on the next revision.
func watch[T any](f *revisionFeed, load func(ctx context.Context) (T, error), onErr func(error)) Producer[T] {
	return func(ctx context.Context, emit func(Snapshot[T])) error {
		for {
			rev := f.current()
			data, err := load(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if onErr != nil {
					onErr(err)
				}
			} else {
				emit(Snapshot[T]{Revision: rev, Data: data})
			}
			if _, err := f.wait(ctx, rev); err != nil {
				return err
			}
		}
	}
}
