package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEachBounded calls fn for every index in [0, n) with at most limit calls
// in flight. Once ctx is done no further call is started; calls already
// running are waited for before forEachBounded returns.
func forEachBounded(ctx context.Context, limit, n int, fn func(ctx context.Context, i int)) {
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var g errgroup.Group

LAUNCH:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}: // acquire semaphore slot; blocks when at capacity
		case <-ctx.Done():
			break LAUNCH
		}
		// select picks at random when both cases are ready.
		if ctx.Err() != nil {
			<-sem
			break
		}

		g.Go(func() error {
			defer func() { <-sem }() // release semaphore slot on return
			fn(ctx, i)
			return nil
		})
	}

	_ = g.Wait() // fn never returns an error
}
