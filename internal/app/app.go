// Package app wires configuration into the backend factories and shared
// clients used by the vidmeta binaries.
package app

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/vidmeta/internal/config"
	"github.com/Sternrassler/vidmeta/pkg/backend"
	apibackend "github.com/Sternrassler/vidmeta/pkg/backend/api"
	"github.com/Sternrassler/vidmeta/pkg/backend/scrape"
	"github.com/Sternrassler/vidmeta/pkg/cache"
	"github.com/Sternrassler/vidmeta/pkg/dataapi"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient accepts a redis:// URL or a bare host:port. Empty returns nil.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	if !strings.Contains(redisURL, "://") {
		return redis.NewClient(&redis.Options{Addr: redisURL}), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewQuotaTracker creates the daily API quota tracker, shared through Redis when
// redisClient is set.
func NewQuotaTracker(cfg *config.Config, redisClient *redis.Client) *ratelimit.QuotaTracker {
	return ratelimit.NewQuotaTracker(redisClient, cfg.QuotaDaily, logging.NewLogger("quota"))
}

// Factories registers both backends. With Redis, records are cached. Every api
// backend draws from quota.
func Factories(cfg *config.Config, redisClient *redis.Client, quota *ratelimit.QuotaTracker) map[string]backend.Factory {
	var cacheManager *cache.Manager
	if redisClient != nil {
		cacheManager = cache.NewManager(redisClient, cfg.CacheTTL)
	}

	chrome := scrape.DefaultChromeConfig()
	chrome.ExecPath = cfg.ChromePath
	chrome.Headless = cfg.Headless

	apiCfg := dataapi.DefaultConfig(cfg.APIKey)
	if cfg.APIBaseURL != "" {
		apiCfg.BaseURL = cfg.APIBaseURL
	}

	return map[string]backend.Factory{
		scrape.Name:     cached(scrape.NewFactory(chrome), cacheManager),
		apibackend.Name: cached(apibackend.NewFactory(apiCfg, quota), cacheManager),
	}
}

func cached(f backend.Factory, m *cache.Manager) backend.Factory {
	return func() (backend.Backend, error) {
		b, err := f()
		if err != nil {
			return nil, err
		}
		return backend.WithCache(b, m), nil
	}
}
