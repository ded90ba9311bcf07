package collect

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// RunAll runs each collector once, concurrently, and returns their responses
// in the same order. Collectors share nothing but the stores they were
// constructed with.
func RunAll(ctx context.Context, collectors ...PeriodicCollector) []CollectResponse {
	resps := make([]CollectResponse, len(collectors))
	eg := errgroup.Group{}
	for i, c := range collectors {
		i, c := i, c
		eg.Go(func() error {
			resps[i] = c.Collect(ctx)
			return nil
		})
	}
	_ = eg.Wait() // collectors report failures in their responses
	return resps
}

// Every runs c immediately and then once per interval until ctx is done,
// passing each response to fn. A run is never started while the previous one
// is still going; ticks that arrive during a run are dropped.
func Every(ctx context.Context, interval time.Duration, c PeriodicCollector, fn func(CollectResponse)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		resp := c.Collect(ctx)
		if fn != nil {
			fn(resp)
		}
		// the ticker holds one tick from a run which overran
		select {
		case <-ticker.C:
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
