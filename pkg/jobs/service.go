package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/pool"
	"github.com/Sternrassler/vidmeta/pkg/ratelimit"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog"
)

// Config holds the Service configuration.
type Config struct {
	// Pool is applied to every job; Name is set to the backend name
	Pool pool.Config

	// RateLimit is the request rate per backend, shared by all jobs (<= 0 = unlimited)
	RateLimit float64

	// RateBurst is the token bucket size (default: 1)
	RateBurst int

	// JobTTL is how long terminal jobs stay queryable
	JobTTL time.Duration

	// MaxJobs bounds the registry size
	MaxJobs int

	// JanitorInterval is the period of the retention sweep
	JanitorInterval time.Duration
}

// DefaultConfig returns the service defaults.
func DefaultConfig() Config {
	return Config{
		Pool:            pool.DefaultConfig(),
		RateLimit:       1,
		RateBurst:       1,
		JobTTL:          DefaultJobTTL,
		MaxJobs:         DefaultMaxJobs,
		JanitorInterval: time.Minute,
	}
}

// Service accepts job submissions and runs each job on its own driver goroutine.
type Service struct {
	config    Config
	registry  *Registry
	factories map[string]backend.Factory
	limiters  map[string]*ratelimit.Limiter
	notifier  Notifier
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewService creates a service for the given backends. notifier may be nil.
func NewService(cfg Config, factories map[string]backend.Factory, notifier Notifier) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		config:    cfg,
		registry:  NewRegistry(cfg.JobTTL, cfg.MaxJobs),
		factories: make(map[string]backend.Factory, len(factories)),
		limiters:  make(map[string]*ratelimit.Limiter, len(factories)),
		notifier:  notifier,
		logger:    logging.NewLogger("jobs"),
		ctx:       ctx,
		cancel:    cancel,
	}
	for name, f := range factories {
		s.factories[name] = f
		s.limiters[name] = ratelimit.NewLimiter(name, cfg.RateLimit, cfg.RateBurst)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.registry.RunJanitor(ctx, cfg.JanitorInterval)
	}()
	return s
}

// Backends returns the registered backend names, sorted.
func (s *Service) Backends() []string {
	names := make([]string, 0, len(s.factories))
	for name := range s.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SubmitOption customizes a single submission.
type SubmitOption func(*driver)

// WithOutcomeSink passes every outcome of the job to fn as soon as it is
// reported, before the job reaches a terminal state. fn is called from one
// goroutine at a time and must not block for long.
func WithOutcomeSink(fn func(video.Outcome)) SubmitOption {
	return func(d *driver) {
		d.sink = fn
	}
}

// Submit registers a job and starts its driver. It returns immediately.
func (s *Service) Submit(ids []string, backendName string, opts ...SubmitOption) (string, error) {
	if len(ids) == 0 {
		return "", ErrEmptyBatch
	}
	factory, ok := s.factories[backendName]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, backendName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return "", ErrShuttingDown
	}

	id, err := s.registry.Create(len(ids), backendName)
	if err != nil {
		return "", err
	}

	poolCfg := s.config.Pool
	poolCfg.Name = backendName
	d := &driver{
		jobID:    id,
		ids:      append([]string(nil), ids...),
		factory:  factory,
		pool:     pool.New(poolCfg, s.limiters[backendName]),
		registry: s.registry,
		notifier: s.notifier,
		logger:   logging.ForJob(s.logger, id, backendName),
	}
	for _, opt := range opts {
		opt(d)
	}

	s.notifier.Publish(Event{
		JobID:     id,
		Type:      EventStatus,
		Status:    StatusPending,
		Total:     len(ids),
		Timestamp: time.Now(),
	})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		d.run(s.ctx)
	}()

	s.logger.Info().
		Str("job_id", id).
		Str("backend", backendName).
		Int("total", len(ids)).
		Msg("Job submitted")
	return id, nil
}

// Status returns a snapshot of the job.
func (s *Service) Status(id string) (Job, error) {
	return s.registry.Get(id)
}

// Results returns the report of a completed job.
// It returns ErrNotReady while the job runs and wraps ErrJobFailed for failed jobs.
func (s *Service) Results(id string) (Report, error) {
	job, err := s.registry.Get(id)
	if err != nil {
		return Report{}, err
	}
	switch job.Status {
	case StatusCompleted:
		return Report{Results: job.Results, Errors: job.Errors}, nil
	case StatusFailed:
		return Report{}, fmt.Errorf("%w: %w", ErrJobFailed, job.Error)
	default:
		return Report{}, ErrNotReady
	}
}

// List returns all jobs without their per-item payloads, newest first.
func (s *Service) List() []Job {
	return s.registry.List()
}

// Stats counts jobs per status.
func (s *Service) Stats() Stats {
	return s.registry.Stats()
}

// Wait blocks until the job is terminal or ctx is done and returns its last snapshot.
func (s *Service) Wait(ctx context.Context, id string, poll time.Duration) (Job, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		job, err := s.registry.Get(id)
		if err != nil {
			return Job{}, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops dispatch for all jobs and waits for the drivers to finish
// or for ctx to expire. Jobs still running are failed as cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All job drivers stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}
