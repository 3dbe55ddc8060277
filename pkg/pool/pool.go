package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	poolInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vidmeta_pool_in_flight",
		Help: "Backend calls currently in flight",
	}, []string{"backend"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidmeta_fetch_duration_seconds",
		Help:    "Duration of one backend call",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"backend"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidmeta_items_total",
		Help: "Items processed by backend and outcome",
	}, []string{"backend", "outcome"})
)

// ErrTimeout is the cause recorded when a backend call exceeds the per-item timeout.
var ErrTimeout = errors.New("fetch timed out")

// Config holds worker pool configuration
type Config struct {
	// Name labels metrics and logs, usually the backend name
	Name string
	// Concurrency is the maximum number of backend calls in flight
	Concurrency int
	// BatchSize chunks the id list; each chunk drains before the next starts
	BatchSize int
	// Timeout per backend call, measured after the rate limiter admits it
	Timeout time.Duration
	// ProgressEvery logs a progress line every N completed items
	ProgressEvery int
}

// DefaultConfig returns the defaults used by the harvesting service
func DefaultConfig() Config {
	return Config{
		Concurrency:   5,
		BatchSize:     50,
		Timeout:       90 * time.Second,
		ProgressEvery: 50,
	}
}

// Fetcher is the slice of backend.Backend the pool needs
type Fetcher interface {
	Fetch(ctx context.Context, ids []string) ([]video.Outcome, error)
	MaxBatch() int
}

// Limiter admits one backend call at a time at a bounded rate
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Hooks observe the run. OnComplete is always called from a single goroutine.
type Hooks struct {
	OnDispatch func(id string)
	OnComplete func(video.Outcome)
}

// Pool drives a Fetcher over id lists
type Pool struct {
	config  Config
	limiter Limiter
	logger  zerolog.Logger
}

// New creates a pool. limiter may be nil for unlimited dispatch.
func New(config Config, limiter Limiter) *Pool {
	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = defaults.ProgressEvery
	}
	if config.Name == "" {
		config.Name = "default"
	}

	return &Pool{
		config:  config,
		limiter: limiter,
		logger:  log.With().Str("component", "pool").Str("backend", config.Name).Logger(),
	}
}

// Config returns the effective configuration after defaults.
func (p *Pool) Config() Config {
	return p.config
}

// Run fetches every id and reports one outcome per input position through
// hooks.OnComplete.
//
// When ctx is cancelled no further calls start; calls already in flight run to
// completion or timeout and their outcomes are still reported. Run then returns
// ctx.Err(), unless every id had already been reported. A fatal backend error
// stops dispatch the same way and is returned.
func (p *Pool) Run(ctx context.Context, ids []string, f Fetcher, hooks Hooks) error {
	start := time.Now()

	unitSize := f.MaxBatch()
	if unitSize <= 0 {
		unitSize = 1
	}

	results := make(chan video.Outcome, p.config.Concurrency*unitSize)
	collected := make(chan int)
	go p.collect(results, len(ids), hooks.OnComplete, collected)

	p.logger.Info().
		Int("total", len(ids)).
		Int("concurrency", p.config.Concurrency).
		Int("unit_size", unitSize).
		Msg("Starting pool run")

	var runErr error
	for lo := 0; lo < len(ids); lo += p.config.BatchSize {
		hi := min(lo+p.config.BatchSize, len(ids))
		if err := p.runBatch(ctx, ids[lo:hi], unitSize, f, hooks, results); err != nil {
			runErr = err
			break
		}
	}

	close(results)
	done := <-collected

	// Every position was reported before cancellation stopped dispatch.
	if runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()) && done == len(ids) {
		runErr = nil
	}

	event := p.logger.Info()
	if runErr != nil {
		event = p.logger.Warn().Err(runErr)
	}
	event.
		Int("completed", done).
		Int("total", len(ids)).
		Dur("duration", time.Since(start)).
		Msg("Pool run finished")

	return runErr
}

// runBatch dispatches one sub-batch and waits for it to drain.
func (p *Pool) runBatch(ctx context.Context, batch []string, unitSize int, f Fetcher, hooks Hooks, results chan<- video.Outcome) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for lo := 0; lo < len(batch); lo += unitSize {
		if gctx.Err() != nil {
			break
		}
		unit := batch[lo:min(lo+unitSize, len(batch))]
		g.Go(func() error {
			return p.runUnit(gctx, unit, f, hooks, results)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// runUnit performs one backend call for unit.
func (p *Pool) runUnit(ctx context.Context, unit []string, f Fetcher, hooks Hooks, results chan<- video.Outcome) error {
	if ctx.Err() != nil {
		return nil
	}
	if p.limiter != nil {
		if err := p.limiter.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				// Cancelled while queued: the unit was never dispatched.
				return nil
			}
			for _, id := range unit {
				results <- video.Failure(video.NewFetchError(id, video.ClassTransient, "rate limiter unavailable", err))
			}
			return nil
		}
	}

	if hooks.OnDispatch != nil {
		for _, id := range unit {
			hooks.OnDispatch(id)
		}
	}

	poolInFlight.WithLabelValues(p.config.Name).Inc()
	start := time.Now()
	finished := make(chan struct{})
	outcomes, err := p.call(ctx, unit, f, finished)
	fetchDuration.WithLabelValues(p.config.Name).Observe(time.Since(start).Seconds())

	// A timed-out call keeps its slot until the backend gives it back.
	defer func() {
		<-finished
		poolInFlight.WithLabelValues(p.config.Name).Dec()
	}()

	if err != nil && backend.IsFatal(err) {
		p.logger.Error().Err(err).Strs("video_ids", unit).Msg("Fatal backend error, stopping dispatch")
		return err
	}
	if err != nil {
		p.logger.Warn().Err(err).Strs("video_ids", unit).Msg("Backend call failed")
	}

	for _, o := range normalize(unit, outcomes, err) {
		results <- o
	}
	return nil
}

// call runs f.Fetch under the per-call timeout. The call's context is detached
// from ctx cancellation so in-flight work is allowed to finish. finished is
// closed when f.Fetch returns, which may be after call reported a timeout.
func (p *Pool) call(ctx context.Context, unit []string, f Fetcher, finished chan<- struct{}) ([]video.Outcome, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.Timeout)
	defer cancel()

	type result struct {
		outcomes []video.Outcome
		err      error
	}
	done := make(chan result, 1)

	go func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{Value: r}}
			}
		}()
		outcomes, err := f.Fetch(callCtx, unit)
		done <- result{outcomes: outcomes, err: err}
	}()

	select {
	case r := <-done:
		return r.outcomes, r.err
	case <-callCtx.Done():
		return nil, fmt.Errorf("%w after %s", ErrTimeout, p.config.Timeout)
	}
}

// collect serializes OnComplete and returns the number of outcomes seen.
func (p *Pool) collect(results <-chan video.Outcome, total int, onComplete func(video.Outcome), collected chan<- int) {
	n := 0
	for o := range results {
		n++
		label := "success"
		if !o.OK() {
			label = string(o.Err.Class)
		}
		itemsTotal.WithLabelValues(p.config.Name, label).Inc()

		if onComplete != nil {
			onComplete(o)
		}

		if n%p.config.ProgressEvery == 0 {
			p.logger.Info().
				Int("completed", n).
				Int("total", total).
				Float64("progress_pct", float64(n)/float64(total)*100).
				Msg("Fetch progress")
		}
	}
	collected <- n
}

// PanicError is the cause recorded when a backend call panics.
type PanicError struct {
	Value any
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("fetcher panicked: %v", e.Value)
}
