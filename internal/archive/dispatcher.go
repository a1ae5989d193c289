package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
)

// DispatcherOptions bounds archive delivery.
type DispatcherOptions struct {
	QueueSize     int
	MaxAttempts   int
	RatePerMinute int
	Timeout       time.Duration
}

// Dispatcher delivers new requests to a Sink off the submission path.
// Deliveries are rate limited and retried a bounded number of times; every
// failure is logged and then dropped.
type Dispatcher struct {
	sink        Sink
	queue       chan requests.Request
	limiter     *rate.Limiter
	maxAttempts int
	timeout     time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	delivered int
	failed    int
	dropped   int
}

// NewDispatcher builds a dispatcher for sink. Call Run to start delivery.
func NewDispatcher(sink Sink, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if sink == nil {
		sink = noopSink{}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Dispatcher{
		sink:        sink,
		queue:       make(chan requests.Request, opts.QueueSize),
		limiter:     rate.NewLimiter(limit, 1),
		maxAttempts: opts.MaxAttempts,
		timeout:     opts.Timeout,
		logger:      logging.NewComponentLogger(logger, "archive"),
	}
}

// Enqueue schedules req for archiving without blocking. When the queue is
// full the request is dropped with a warning.
func (d *Dispatcher) Enqueue(req requests.Request) {
	select {
	case d.queue <- req:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		logging.WarnWithContext(d.logger, "archive queue full; request not archived", "archive_dropped",
			logging.String(logging.FieldRequestID, req.ID),
			logging.String(logging.FieldImpact, "request is live but missing from the spreadsheet"),
			logging.String(logging.FieldErrorHint, "raise archive.queue_size or archive.rate_per_minute"))
	}
}

// Run delivers queued requests until ctx ends.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.deliver(ctx, req)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req requests.Request) {
	record := RecordFromRequest(req)
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		lastErr = d.sink.Append(attemptCtx, record)
		cancel()
		if lastErr == nil {
			d.mu.Lock()
			d.delivered++
			d.mu.Unlock()
			d.logger.Debug("request archived",
				logging.String(logging.FieldRequestID, req.ID),
				logging.Int("attempt", attempt))
			return
		}
		if ctx.Err() != nil {
			return
		}
		d.logger.Debug("archive attempt failed",
			logging.String(logging.FieldRequestID, req.ID),
			logging.Int("attempt", attempt),
			logging.Error(lastErr))
	}

	d.mu.Lock()
	d.failed++
	d.mu.Unlock()
	logging.WarnWithContext(d.logger, "request not archived", "archive_failed",
		logging.String(logging.FieldRequestID, req.ID),
		logging.Int("attempts", d.maxAttempts),
		logging.Error(lastErr),
		logging.String(logging.FieldImpact, "request is live but missing from the spreadsheet"),
		logging.String(logging.FieldErrorHint, "check archive credentials and sheet sharing"))
}

// Stats reports delivery counters.
type Stats struct {
	Delivered int
	Failed    int
	Dropped   int
	Queued    int
}

// Stats returns current delivery counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Delivered: d.delivered, Failed: d.failed, Dropped: d.dropped, Queued: len(d.queue)}
}
