package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vidmeta_ratelimit_wait_seconds",
	Help:    "Time spent waiting for a rate limiter slot",
	Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
}, []string{"limiter"})

// Limiter is a token bucket shared by every caller that holds it.
// Acquire never drops a request; it only delays it. Waiters are served in
// arrival order because each call reserves the next free slot.
type Limiter struct {
	name string
	lim  *rate.Limiter
}

// NewLimiter creates a limiter admitting rps requests per second with the given burst.
// rps <= 0 disables limiting.
func NewLimiter(name string, rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		name: name,
		lim:  rate.NewLimiter(limit, burst),
	}
}

// Acquire blocks until one more request keeps the rate within the limit,
// or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	start := time.Now()
	err := l.lim.Wait(ctx)
	rateLimitWaitSeconds.WithLabelValues(l.name).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("rate limiter %s: %w", l.name, err)
	}
	return nil
}

// Name returns the limiter's metric label.
func (l *Limiter) Name() string {
	return l.name
}

// Rate returns the configured requests per second (0 when unlimited).
func (l *Limiter) Rate() float64 {
	if l.lim.Limit() == rate.Inf {
		return 0
	}
	return float64(l.lim.Limit())
}
