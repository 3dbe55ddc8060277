package backend

import (
	"context"

	"github.com/Sternrassler/vidmeta/pkg/cache"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog"
)

// cachedBackend answers ids from the record cache and forwards only misses.
type cachedBackend struct {
	Backend
	cache  *cache.Manager
	logger zerolog.Logger
}

// WithCache wraps b so successful records are cached and reused.
// A nil manager returns b unchanged.
func WithCache(b Backend, m *cache.Manager) Backend {
	if m == nil {
		return b
	}
	return &cachedBackend{
		Backend: b,
		cache:   m,
		logger:  logging.NewLogger("backend-cache").With().Str(logging.FieldBackend, b.Name()).Logger(),
	}
}

// Fetch implements Backend.
func (c *cachedBackend) Fetch(ctx context.Context, ids []string) ([]video.Outcome, error) {
	keys := make([]cache.CacheKey, len(ids))
	for i, id := range ids {
		keys[i] = cache.CacheKey{Backend: c.Name(), VideoID: id}
	}

	hits, err := c.cache.GetMany(ctx, keys)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Cache lookup failed, fetching upstream")
		hits = nil
	}

	out := make([]video.Outcome, 0, len(ids))
	var misses []string
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if entry, ok := hits[keys[i].String()]; ok {
			out = append(out, video.Success(entry.Record))
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		c.logger.Debug().Int("hits", len(out)).Msg("All ids served from cache")
		return out, nil
	}

	fetched, fetchErr := c.Backend.Fetch(ctx, misses)
	for _, o := range fetched {
		if o.OK() {
			if err := c.cache.Set(ctx, cache.CacheKey{Backend: c.Name(), VideoID: o.VideoID}, *o.Record); err != nil {
				c.logger.Warn().Err(err).Str("video_id", o.VideoID).Msg("Failed to cache record")
			}
		}
	}
	return append(out, fetched...), fetchErr
}
