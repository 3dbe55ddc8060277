package cache

import (
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "vidmeta"

// CacheKey identifies one cached record.
type CacheKey struct {
	// Backend is the name of the source that produced the record (e.g. "api", "scrape").
	// Records from different sources carry different field coverage, so they are cached apart.
	Backend string

	// VideoID is the upstream video identifier.
	VideoID string
}

// String generates a deterministic cache key string.
// Format: vidmeta:backend:video_id
//
// Example:
//
//	vidmeta:api:dQw4w9WgXcQ
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	backend := strings.ToLower(strings.TrimSpace(k.Backend))
	if backend == "" {
		backend = "any"
	}
	parts = append(parts, backend)
	parts = append(parts, strings.TrimSpace(k.VideoID))

	return strings.Join(parts, ":")
}
