// Package ratelimit gates outbound requests against upstream video sources.
//
// Limiter is a token bucket that spaces requests to a fixed rate across every
// caller sharing it. QuotaTracker accounts for the daily unit budget of the
// YouTube Data API and keeps that state in Redis so several processes draw from
// the same budget.
package ratelimit

import (
	"fmt"
	"time"
)

// Redis key prefix for daily quota counters. The day (Pacific time) is appended.
const RedisKeyQuotaPrefix = "vidmeta:quota:"

// DefaultDailyBudget is the YouTube Data API default allocation in units per day.
const DefaultDailyBudget = 10000

// Thresholds for quota decisions, as a fraction of the daily budget still unused.
const (
	// QuotaThresholdWarning logs a warning and throttles once less than this share remains.
	QuotaThresholdWarning = 0.10

	// QuotaThresholdHealthy means no restrictions apply.
	QuotaThresholdHealthy = 0.50
)

// QuotaState is the quota usage for the current accounting day.
type QuotaState struct {
	// Day is the accounting day in YYYY-MM-DD form (America/Los_Angeles).
	Day string `json:"day"`

	// Used is the number of units reserved today.
	Used int `json:"used"`

	// Budget is the number of units available per day.
	Budget int `json:"budget"`

	// ResetAt is the next midnight in the accounting time zone.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was read.
	LastUpdate time.Time `json:"last_update"`
}

// Remaining returns the units left today, never negative.
func (s *QuotaState) Remaining() int {
	if r := s.Budget - s.Used; r > 0 {
		return r
	}
	return 0
}

// IsExhausted returns true when no units remain.
func (s *QuotaState) IsExhausted() bool {
	return s.Remaining() == 0
}

// NeedsThrottling returns true when the remaining share is below the warning threshold.
func (s *QuotaState) NeedsThrottling() bool {
	if s.Budget <= 0 || s.IsExhausted() {
		return false
	}
	return float64(s.Remaining())/float64(s.Budget) < QuotaThresholdWarning
}

// IsHealthy returns true when at least half of the budget remains.
func (s *QuotaState) IsHealthy() bool {
	if s.Budget <= 0 {
		return false
	}
	return float64(s.Remaining())/float64(s.Budget) >= QuotaThresholdHealthy
}

// TimeUntilReset returns the duration until the budget resets, or 0 if already passed.
func (s *QuotaState) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// quotaDay returns the accounting day for t and the instant the next day starts.
func quotaDay(t time.Time, loc *time.Location) (string, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return local.Format("2006-01-02"), start.AddDate(0, 0, 1)
}

func quotaKey(day string) string {
	return fmt.Sprintf("%s%s", RedisKeyQuotaPrefix, day)
}
