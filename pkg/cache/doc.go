// Package cache provides a Redis-backed cache of harvested video records.
//
// Upstream fetches are slow and, for the Data API, billed against a daily quota.
// Records fetched once are kept for a configurable TTL so repeated jobs over the
// same ids are answered from Redis.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 6*time.Hour)
//
//	key := cache.CacheKey{Backend: "api", VideoID: "dQw4w9WgXcQ"}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from upstream, then manager.Set(ctx, key, rec)
//	}
//
// Only successful records are cached. Failures are always retried upstream.
//
// # Metrics
//
//   - vidmeta_cache_hits_total{backend} - Cache hits
//   - vidmeta_cache_misses_total{backend} - Cache misses
//   - vidmeta_cache_written_bytes_total - Bytes written
//   - vidmeta_cache_errors_total{operation} - Cache operation errors
package cache
