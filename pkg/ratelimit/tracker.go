package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrQuotaExhausted is returned by Reserve when the daily budget cannot cover the request.
var ErrQuotaExhausted = errors.New("daily API quota exhausted")

// Prometheus metrics for quota tracking.
var (
	quotaUsedUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidmeta_quota_used_units",
		Help: "Units of the daily YouTube Data API quota reserved so far",
	})

	quotaRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidmeta_quota_rejections_total",
		Help: "Total number of API calls refused because the daily quota was exhausted",
	})

	quotaThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidmeta_quota_throttles_total",
		Help: "Total number of API calls reserved while the quota was in the warning range",
	})
)

// quotaKeyTTL keeps yesterday's counter around long enough to inspect it.
const quotaKeyTTL = 48 * time.Hour

// QuotaTracker accounts for daily API quota units.
// With a Redis client the counter is shared between processes; without one it
// is kept in memory.
type QuotaTracker struct {
	redis  *redis.Client
	budget int
	loc    *time.Location
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]int
}

// NewQuotaTracker creates a tracker for budget units per day. redisClient may be nil.
func NewQuotaTracker(redisClient *redis.Client, budget int, logger zerolog.Logger) *QuotaTracker {
	if budget <= 0 {
		budget = DefaultDailyBudget
	}
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		logger.Warn().Err(err).Msg("Pacific time zone unavailable, accounting quota in UTC")
		loc = time.UTC
	}
	return &QuotaTracker{
		redis:  redisClient,
		budget: budget,
		loc:    loc,
		logger: logger,
		now:    time.Now,
		local:  make(map[string]int),
	}
}

// Budget returns the configured daily budget.
func (t *QuotaTracker) Budget() int {
	return t.budget
}

// Reserve takes units from today's budget.
// It returns ErrQuotaExhausted, without consuming anything, when the budget cannot cover units.
func (t *QuotaTracker) Reserve(ctx context.Context, units int) error {
	if units <= 0 {
		return nil
	}
	day, _ := quotaDay(t.now(), t.loc)

	used, err := t.incr(ctx, day, units)
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}

	if used > t.budget {
		if _, err := t.incr(ctx, day, -units); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to roll back quota reservation")
		}
		quotaRejectionsTotal.Inc()
		t.logger.Error().
			Int("used", used-units).
			Int("budget", t.budget).
			Msg("Daily quota exhausted - rejecting API call")
		return ErrQuotaExhausted
	}

	quotaUsedUnits.Set(float64(used))
	state := QuotaState{Used: used, Budget: t.budget}
	if state.NeedsThrottling() {
		quotaThrottlesTotal.Inc()
		t.logger.Warn().
			Int("remaining", state.Remaining()).
			Int("budget", t.budget).
			Msg("Daily quota WARNING - less than 10% remaining")
	}
	return nil
}

// MarkExhausted records that the upstream reported the quota as spent, so
// further reservations fail until the next reset.
func (t *QuotaTracker) MarkExhausted(ctx context.Context) error {
	day, _ := quotaDay(t.now(), t.loc)

	if t.redis == nil {
		t.mu.Lock()
		t.local[day] = t.budget
		t.mu.Unlock()
	} else {
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, quotaKey(day), t.budget, quotaKeyTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store exhausted quota in redis: %w", err)
		}
	}
	quotaUsedUnits.Set(float64(t.budget))
	t.logger.Error().Str("day", day).Msg("Upstream reported quota exceeded")
	return nil
}

// GetState returns today's usage.
func (t *QuotaTracker) GetState(ctx context.Context) (*QuotaState, error) {
	now := t.now()
	day, resetAt := quotaDay(now, t.loc)

	used := 0
	if t.redis == nil {
		t.mu.Lock()
		used = t.local[day]
		t.mu.Unlock()
	} else {
		v, err := t.redis.Get(ctx, quotaKey(day)).Int()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("get quota usage: %w", err)
		}
		used = v
	}

	return &QuotaState{
		Day:        day,
		Used:       used,
		Budget:     t.budget,
		ResetAt:    resetAt,
		LastUpdate: now,
	}, nil
}

// incr adds delta to the day's counter and returns the new total.
func (t *QuotaTracker) incr(ctx context.Context, day string, delta int) (int, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		// Drop counters from earlier days.
		for d := range t.local {
			if d != day {
				delete(t.local, d)
			}
		}
		t.local[day] += delta
		return t.local[day], nil
	}

	key := quotaKey(day)
	pipe := t.redis.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(delta))
	pipe.Expire(ctx, key, quotaKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incrby: %w", err)
	}
	return int(incr.Val()), nil
}
