package reset

import (
	"context"
	"errors"
	"log/slog"

	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
	"stagequeue/internal/store"
)

// MaxBatchSize is the largest number of deletes committed as one unit.
const MaxBatchSize = 400

// Deleter is the part of the store a reset needs.
type Deleter interface {
	ListIDs(ctx context.Context, filter store.Filter) ([]string, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// Result summarizes a reset run.
type Result struct {
	Total   int
	Batches int
	Deleted int64
}

// Coordinator wipes every request once a ticket has been confirmed twice.
type Coordinator struct {
	store     Deleter
	guard     *Guard
	batchSize int
	logger    *slog.Logger
}

// NewCoordinator builds a coordinator. batchSize is clamped to MaxBatchSize.
func NewCoordinator(s Deleter, guard *Guard, batchSize int, logger *slog.Logger) *Coordinator {
	if batchSize <= 0 || batchSize > MaxBatchSize {
		batchSize = MaxBatchSize
	}
	if guard == nil {
		guard = NewGuard(0)
	}
	return &Coordinator{
		store:     s,
		guard:     guard,
		batchSize: batchSize,
		logger:    logging.NewComponentLogger(logger, "reset"),
	}
}

// Guard exposes the confirmation guard.
func (c *Coordinator) Guard() *Guard {
	return c.guard
}

// Reset consumes ticket and deletes all requests in batches. It reports
// success only after every batch has committed. On partial failure the
// returned error is a *PartialBatchFailure and committed batches stay deleted.
func (c *Coordinator) Reset(ctx context.Context, ticket string) (Result, error) {
	if err := c.guard.Consume(ticket); err != nil {
		return Result{}, err
	}

	ids, err := c.store.ListIDs(ctx, store.AllFilter())
	if err != nil {
		return Result{}, requests.Unavailable("list request ids", err)
	}
	result := Result{Total: len(ids)}
	c.logger.Info("reset started",
		logging.Int("requests", len(ids)),
		logging.Int("batch_size", c.batchSize))

	batches, err := ApplyChunked(ctx, ids, c.batchSize, func(ctx context.Context, index int, batch []string) error {
		deleted, err := c.store.DeleteMany(ctx, batch)
		if err != nil {
			return err
		}
		result.Deleted += deleted
		c.logger.Debug("reset batch committed",
			logging.Int("batch", index),
			logging.Int64("deleted", deleted))
		return nil
	})
	result.Batches = batches

	var partial *PartialBatchFailure
	if errors.As(err, &partial) {
		logging.WarnWithContext(c.logger, "reset incomplete", "reset_partial_failure",
			logging.Int("failed_batches", len(partial.Failed)),
			logging.Int("batches", partial.Batches),
			logging.Int64("deleted", result.Deleted),
			logging.Error(err),
			logging.String(logging.FieldImpact, "some requests were not cleared; cleared ones are gone"),
			logging.String(logging.FieldErrorHint, "run the reset again to clear the rest"))
		return result, err
	}
	if err != nil {
		return result, err
	}
	c.logger.Info("reset complete",
		logging.Int("batches", result.Batches),
		logging.Int64("deleted", result.Deleted))
	return result, nil
}
