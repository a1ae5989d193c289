package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
	"stagequeue/internal/store"
)

const (
	defaultSubmitTimeout = 10 * time.Second
	defaultOpenTimeout   = 5 * time.Second
)

// Archiver receives every newly created request. Enqueue must not block.
type Archiver interface {
	Enqueue(req requests.Request)
}

// Engine applies request lifecycle transitions against a store.
type Engine struct {
	store         store.Store
	archiver      Archiver
	opener        Opener
	logger        *slog.Logger
	submitTimeout time.Duration
	openTimeout   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithArchiver hands each created request to a.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) {
		if a != nil {
			e.archiver = a
		}
	}
}

// WithOpener sets the performance track opener used by Play.
func WithOpener(o Opener) Option {
	return func(e *Engine) {
		if o != nil {
			e.opener = o
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logging.NewComponentLogger(logger, "lifecycle")
	}
}

// WithSubmitTimeout bounds how long Submit waits for the store.
func WithSubmitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.submitTimeout = d
		}
	}
}

// WithOpenTimeout bounds how long Play waits for the opener.
func WithOpenTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.openTimeout = d
		}
	}
}

// NewEngine constructs an engine over s.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		archiver:      noopArchiver{},
		opener:        noopOpener{},
		logger:        logging.NewComponentLogger(nil, "lifecycle"),
		submitTimeout: defaultSubmitTimeout,
		openTimeout:   defaultOpenTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type noopArchiver struct{}

func (noopArchiver) Enqueue(requests.Request) {}

// Submit validates draft and creates a pending request. The store call is
// bounded by the submit timeout; on expiry ErrTimeout is returned and the
// write may or may not have landed.
func (e *Engine) Submit(ctx context.Context, draft requests.Draft) (requests.Request, error) {
	req, err := draft.Normalize()
	if err != nil {
		return requests.Request{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()

	type result struct {
		req requests.Request
		err error
	}
	done := make(chan result, 1)
	go func() {
		created, err := e.store.Create(ctx, req)
		done <- result{req: created, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result{err: ctx.Err()}
	}
	if res.err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logging.WarnWithContext(e.logger, "submission timed out", "submit_timeout",
				logging.Duration("timeout", e.submitTimeout),
				logging.String(logging.FieldImpact, "singer was asked to resubmit"),
				logging.String(logging.FieldErrorHint, "check database health with 'stagequeue status'"))
			return requests.Request{}, fmt.Errorf("submit request: %w", requests.ErrTimeout)
		}
		return requests.Request{}, requests.Unavailable("submit request", res.err)
	}

	e.logger.Info("request submitted",
		logging.String(logging.FieldRequestID, res.req.ID),
		logging.String("singer", res.req.SingerName),
		logging.String("song", res.req.Song))
	e.archiver.Enqueue(res.req)
	return res.req, nil
}

// Approve moves a pending request to queued with its track URL.
func (e *Engine) Approve(ctx context.Context, id, trackURL string) (requests.Request, error) {
	trackURL = strings.TrimSpace(trackURL)
	if trackURL == "" {
		return requests.Request{}, requests.Invalid("youtubeUrl", "is required to approve")
	}
	delta := store.StatusDelta(requests.StatusQueued)
	delta.YouTubeURL = &trackURL
	return e.transition(ctx, requests.OpApprove, id, delta)
}

// Reject moves a pending or queued request to rejected.
func (e *Engine) Reject(ctx context.Context, id string) (requests.Request, error) {
	return e.transition(ctx, requests.OpReject, id, store.StatusDelta(requests.StatusRejected))
}

// MarkDone completes the playing request.
func (e *Engine) MarkDone(ctx context.Context, id string) (requests.Request, error) {
	return e.transition(ctx, requests.OpDone, id, store.StatusDelta(requests.StatusCompleted))
}

// Edit corrects song, artist, and track URL of a pending or queued request.
func (e *Engine) Edit(ctx context.Context, id string, edit requests.Edit) (requests.Request, error) {
	edit, err := edit.Normalize()
	if err != nil {
		return requests.Request{}, err
	}
	delta := store.Delta{Song: &edit.Song, Artist: &edit.Artist, YouTubeURL: &edit.YouTubeURL}
	return e.transition(ctx, requests.OpEdit, id, delta)
}

// Remove deletes a request that has not reached a terminal status. Later
// lookups report requests.ErrNotFound.
func (e *Engine) Remove(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id, store.When(requests.AllowedFrom(requests.OpRemove)...)); err != nil {
		return e.mapError(requests.OpRemove, id, err)
	}
	e.logger.Info("request removed", logging.String(logging.FieldRequestID, id))
	return nil
}

// Play promotes a queued request to playing. Any request already playing is
// completed in the same store write, so no snapshot ever holds two playing
// requests and a failed promotion leaves the current singer on stage.
func (e *Engine) Play(ctx context.Context, id string) (requests.Request, error) {
	target, err := e.store.Get(ctx, id)
	if err != nil {
		return requests.Request{}, e.mapError(requests.OpPlay, id, err)
	}
	if !requests.CanApply(requests.OpPlay, target.Status) {
		return requests.Request{}, &requests.PreconditionError{ID: id, Op: string(requests.OpPlay), Status: target.Status}
	}
	if !target.HasTrack() {
		return requests.Request{}, requests.Invalid("youtubeUrl", "must be set before playing")
	}

	promoted, demoted, err := e.store.Promote(ctx, id)
	if err != nil {
		return requests.Request{}, e.mapError(requests.OpPlay, id, err)
	}
	for _, other := range demoted {
		e.logger.Info("request demoted",
			logging.String(logging.FieldRequestID, other),
			logging.String("replaced_by", id))
	}
	e.logger.Info("request playing",
		logging.String(logging.FieldRequestID, id),
		logging.String("song", promoted.Song),
		logging.String("singer", promoted.SingerName))
	e.openTrack(ctx, promoted)
	return promoted, nil
}

func (e *Engine) openTrack(ctx context.Context, req requests.Request) {
	openCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.openTimeout)
	defer cancel()
	if err := e.opener.Open(openCtx, req.YouTubeURL); err != nil {
		logging.WarnWithContext(e.logger, "performance track did not open", "player_open_failed",
			logging.String(logging.FieldRequestID, req.ID),
			logging.String("url", req.YouTubeURL),
			logging.Error(err),
			logging.String(logging.FieldImpact, "request is playing; open the track by hand"),
			logging.String(logging.FieldErrorHint, "check player.open_command"))
	}
}

// Settings returns the display settings.
func (e *Engine) Settings(ctx context.Context) (requests.Settings, error) {
	settings, err := e.store.Settings(ctx)
	if err != nil {
		return requests.Settings{}, requests.Unavailable("read settings", err)
	}
	return settings, nil
}

// SetTheme stores the display theme. Unknown theme names are rejected here;
// readers still map unknown stored values to the default theme.
func (e *Engine) SetTheme(ctx context.Context, name string) (requests.Settings, error) {
	theme, ok := requests.ParseTheme(name)
	if !ok {
		return requests.Settings{}, requests.Invalid("theme", "must be default, orange, or christmas")
	}
	if err := e.store.SaveSettings(ctx, requests.Settings{Theme: theme}); err != nil {
		return requests.Settings{}, requests.Unavailable("save settings", err)
	}
	e.logger.Info("theme changed", logging.String("theme", string(theme)))
	return e.Settings(ctx)
}

func (e *Engine) transition(ctx context.Context, op requests.Op, id string, delta store.Delta) (requests.Request, error) {
	updated, err := e.store.Update(ctx, id, delta, store.When(requests.AllowedFrom(op)...))
	if err != nil {
		return requests.Request{}, e.mapError(op, id, err)
	}
	e.logger.Info("request updated",
		logging.String(logging.FieldRequestID, id),
		logging.String("op", string(op)),
		logging.String(logging.FieldStatus, string(updated.Status)))
	return updated, nil
}

func (e *Engine) mapError(op requests.Op, id string, err error) error {
	var condErr *store.ConditionError
	switch {
	case errors.As(err, &condErr):
		return &requests.PreconditionError{ID: id, Op: string(op), Status: condErr.Current}
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%s %s: %w", op, id, requests.ErrNotFound)
	case errors.Is(err, store.ErrPlayingConflict):
		return fmt.Errorf("%w: %w", &requests.PreconditionError{ID: id, Op: string(op)}, err)
	default:
		return requests.Unavailable(fmt.Sprintf("%s %s", op, id), err)
	}
}

// SearchURL returns a YouTube search for a karaoke track of req.
func SearchURL(req requests.Request) string {
	q := url.Values{}
	q.Set("search_query", req.Song+" karaoke "+req.Artist)
	return "https://www.youtube.com/results?" + q.Encode()
}
