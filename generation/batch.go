package generation

import (
	"context"
	"fmt"

	"mediastudio/providers"
	"mediastudio/store"
)

// BatchJob produces one item of a batch. index counts from zero.
type BatchJob func(ctx context.Context, index int, progress providers.ProgressFunc) (*store.MediaItem, error)

// ClampBatch bounds a requested batch size to [1, max].
func ClampBatch(n, max int) int {
	if max < 1 {
		max = 1
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// RunBatch runs job n times one after another. Progress of the current job is
// folded into an overall percentage of (completed*100 + current) / n. The
// first error stops the batch; items finished before it are returned with it.
func RunBatch(ctx context.Context, n int, progress providers.ProgressFunc, job BatchJob) ([]*store.MediaItem, error) {
	if n < 1 {
		n = 1
	}
	items := make([]*store.MediaItem, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item, err := job(ctx, i, batchProgress(progress, i, n))
		if err != nil {
			if n > 1 {
				return items, fmt.Errorf("batch item %d of %d: %w", i+1, n, err)
			}
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func batchProgress(progress providers.ProgressFunc, completed, n int) providers.ProgressFunc {
	if progress == nil {
		return nil
	}
	if n == 1 {
		return progress
	}
	return func(p providers.Progress) {
		stage := p.Stage
		// Only the last item may finish the batch.
		if stage == providers.StageDone && completed+1 < n {
			stage = providers.StageSaving
		}
		progress(providers.Progress{
			Stage:   stage,
			Percent: (completed*100 + p.Percent) / n,
			Message: fmt.Sprintf("%d/%d %s", completed+1, n, p.Message),
		})
	}
}
