package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultTTL is how long a record stays cached when no TTL is configured.
const DefaultTTL = 6 * time.Hour

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client, ttl time.Duration) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		redis: redisClient,
		ttl:   ttl,
	}
}

// TTL returns the lifetime given to new entries.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(key.Backend).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := m.decode(ctx, key, data)
	if err != nil {
		return nil, err
	}
	CacheHits.WithLabelValues(key.Backend).Inc()
	return entry, nil
}

// GetMany looks up several keys in one round trip.
// The result maps key strings to entries; misses are simply absent.
func (m *Manager) GetMany(ctx context.Context, keys []CacheKey) (map[string]*CacheEntry, error) {
	out := make(map[string]*CacheEntry, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}

	vals, err := m.redis.MGet(ctx, names...).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			CacheMisses.WithLabelValues(keys[i].Backend).Inc()
			continue
		}
		entry, err := m.decode(ctx, keys[i], []byte(s))
		if err != nil {
			// Corrupt or expired entries count as misses here.
			continue
		}
		CacheHits.WithLabelValues(keys[i].Backend).Inc()
		out[names[i]] = entry
	}
	return out, nil
}

// Set stores rec under key with the manager's TTL.
func (m *Manager) Set(ctx context.Context, key CacheKey, rec video.Record) error {
	return m.SetEntry(ctx, key, NewEntry(rec, m.ttl))
}

// SetEntry stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (m *Manager) SetEntry(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheWrittenBytes.Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (m *Manager) decode(ctx context.Context, key CacheKey, data []byte) (*CacheEntry, error) {
	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.WithLabelValues(key.Backend).Inc()
		return nil, ErrCacheMiss
	}
	return &entry, nil
}
