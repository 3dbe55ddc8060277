package cache

import (
	"time"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// CacheEntry represents a cached video record.
type CacheEntry struct {
	// Record is the harvested metadata
	Record video.Record `json:"record"`

	// Expires is when the cache entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this record
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry wraps rec with an expiry ttl from now.
func NewEntry(rec video.Record, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		Record:   rec,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Age returns how long ago the entry was cached.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CachedAt)
}
