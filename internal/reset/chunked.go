package reset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"stagequeue/internal/requests"
)

// BatchError records one failed batch. Index is 1-based.
type BatchError struct {
	Index int
	Size  int
	Err   error
}

func (b BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d items): %v", b.Index, b.Size, b.Err)
}

// PartialBatchFailure reports that some batches failed. Batches not listed
// in Failed were committed and stay committed.
type PartialBatchFailure struct {
	Total     int
	Batches   int
	Committed int
	Failed    []BatchError
}

func (e *PartialBatchFailure) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%d of %d batches failed: %s", len(e.Failed), e.Batches, strings.Join(parts, "; "))
}

func (e *PartialBatchFailure) ErrorKind() string { return requests.KindPartialBatch }

// Unwrap exposes the per-batch causes to errors.Is and errors.As.
func (e *PartialBatchFailure) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// FailedIndexes returns the 1-based indexes of the failed batches.
func (e *PartialBatchFailure) FailedIndexes() []int {
	out := make([]int, 0, len(e.Failed))
	for _, f := range e.Failed {
		out = append(out, f.Index)
	}
	return out
}

// Batches returns how many batches of at most size are needed for n items.
func Batches(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// ApplyChunked splits items into consecutive batches of at most size and
// calls fn for each batch in order, waiting for it to return before starting
// the next. A failed batch does not stop later ones; every failure is
// collected into a *PartialBatchFailure. Context cancellation stops the run
// and marks the remaining batches failed.
func ApplyChunked[T any](ctx context.Context, items []T, size int, fn func(ctx context.Context, index int, batch []T) error) (int, error) {
	if size <= 0 {
		return 0, errors.New("batch size must be positive")
	}
	total := Batches(len(items), size)
	var failed []BatchError
	for i := 0; i < total; i++ {
		start := i * size
		end := min(start+size, len(items))
		batch := items[start:end]

		if err := ctx.Err(); err != nil {
			failed = append(failed, BatchError{Index: i + 1, Size: len(batch), Err: err})
			continue
		}
		if err := fn(ctx, i+1, batch); err != nil {
			failed = append(failed, BatchError{Index: i + 1, Size: len(batch), Err: err})
		}
	}
	if len(failed) > 0 {
		return total, &PartialBatchFailure{
			Total:     len(items),
			Batches:   total,
			Committed: total - len(failed),
			Failed:    failed,
		}
	}
	return total, nil
}
