// Package pool runs bounded-concurrency fetches over a list of video ids.
//
// Features:
//   - At most Concurrency backend calls in flight (errgroup with SetLimit)
//   - Every call waits on a shared rate limiter before it starts
//   - Per-call timeout measured from admission; a timed-out call fails only its own ids
//   - Sub-batches of BatchSize ids drain one after another
//   - Exactly one outcome per input position, delivered from a single goroutine
//
// Usage:
//
//	p := pool.New(pool.Config{Name: "api", Concurrency: 5, Timeout: 90 * time.Second}, limiter)
//	err := p.Run(ctx, ids, backend, pool.Hooks{
//		OnComplete: func(o video.Outcome) { agg.Add(o) },
//	})
package pool
