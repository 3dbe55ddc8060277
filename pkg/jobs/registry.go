package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Retention defaults.
const (
	DefaultJobTTL  = 24 * time.Hour
	DefaultMaxJobs = 1000
)

// Stats counts registry entries per status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Registry owns every job of the process.
// Terminal jobs older than ttl are evicted, and beyond maxJobs entries the
// oldest terminal jobs go first. Pending and running jobs are never evicted.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	ttl     time.Duration
	maxJobs int
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRegistry creates a registry. Zero values select the defaults; a negative
// ttl or maxJobs disables that bound.
func NewRegistry(ttl time.Duration, maxJobs int) *Registry {
	if ttl == 0 {
		ttl = DefaultJobTTL
	}
	if maxJobs == 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Registry{
		jobs:    make(map[string]*Job),
		ttl:     ttl,
		maxJobs: maxJobs,
		now:     time.Now,
		logger:  logging.NewLogger("registry"),
	}
}

// Create registers a pending job for total ids and returns its id.
func (r *Registry) Create(total int, backend string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id string
	for attempt := 0; ; attempt++ {
		u, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate job id: %w", err)
		}
		id = u.String()
		if _, exists := r.jobs[id]; !exists {
			break
		}
		if attempt >= 3 {
			return "", fmt.Errorf("generate job id: collision on %s", id)
		}
	}

	r.jobs[id] = &Job{
		ID:        id,
		Status:    StatusPending,
		Backend:   backend,
		Progress:  Progress{Total: total},
		CreatedAt: r.now(),
	}

	if r.maxJobs > 0 && len(r.jobs) > r.maxJobs {
		r.evictLocked(r.now())
	}
	return id, nil
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job.clone(), nil
}

// List returns copies of all jobs, newest first.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		c := *job
		// Listings omit per-item payloads.
		c.Results, c.Errors = nil, nil
		out = append(out, c.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Stats counts jobs per status.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Total: len(r.jobs)}
	for _, job := range r.jobs {
		switch job.Status {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// update applies fn to a non-terminal job under the write lock.
func (r *Registry) update(id string, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.IsTerminal() {
		return ErrTerminal
	}
	fn(job)
	return nil
}

// Sweep applies the retention policy and returns the number of evicted jobs.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked(now)
}

func (r *Registry) evictLocked(now time.Time) int {
	removed := 0
	var terminal []*Job
	for id, job := range r.jobs {
		if !job.Status.IsTerminal() || job.FinishedAt == nil {
			continue
		}
		if r.ttl > 0 && now.Sub(*job.FinishedAt) > r.ttl {
			delete(r.jobs, id)
			removed++
			continue
		}
		terminal = append(terminal, job)
	}

	if r.maxJobs > 0 && len(r.jobs) > r.maxJobs {
		sort.Slice(terminal, func(i, j int) bool {
			return terminal[i].FinishedAt.Before(*terminal[j].FinishedAt)
		})
		for _, job := range terminal {
			if len(r.jobs) <= r.maxJobs {
				break
			}
			delete(r.jobs, job.ID)
			removed++
		}
	}

	if removed > 0 {
		jobsEvicted.Add(float64(removed))
		r.logger.Debug().Int("evicted", removed).Int("remaining", len(r.jobs)).Msg("Swept job registry")
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
