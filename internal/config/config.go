// Package config loads the vidmeta runtime configuration from an optional YAML
// file, an optional .env file and the process environment, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/pool"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration.
type Config struct {
	Port      int    `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// RateLimit is requests per second per backend (<= 0 = unlimited)
	RateLimit   float64       `yaml:"rate_limit"`
	Concurrency int           `yaml:"concurrency"`
	BatchSize   int           `yaml:"batch_size"`
	ItemTimeout time.Duration `yaml:"item_timeout"`

	APIKey     string `yaml:"api_key"`
	APIBaseURL string `yaml:"api_base_url"`
	QuotaDaily int    `yaml:"quota_daily"`

	// RedisURL enables the record cache and the shared quota counter
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	JobTTL  time.Duration `yaml:"job_ttl"`
	MaxJobs int           `yaml:"max_jobs"`

	CORSOrigins    string `yaml:"cors_allow_origins"`
	DefaultBackend string `yaml:"default_backend"`

	ChromePath string `yaml:"chrome_path"`
	Headless   bool   `yaml:"headless"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Port:           8000,
		LogLevel:       "info",
		RateLimit:      1,
		Concurrency:    5,
		BatchSize:      50,
		ItemTimeout:    90 * time.Second,
		QuotaDaily:     10000,
		CacheTTL:       6 * time.Hour,
		JobTTL:         jobs.DefaultJobTTL,
		MaxJobs:        jobs.DefaultMaxJobs,
		CORSOrigins:    "*",
		DefaultBackend: "scrape",
		Headless:       true,
	}
}

// Load resolves the configuration. The YAML file is read from VIDMETA_CONFIG
// when set; a .env file in the working directory is optional.
func Load() (*Config, error) {
	return load(os.Getenv("VIDMETA_CONFIG"), ".env")
}

func load(yamlPath, envFile string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", yamlPath, err)
		}
	}

	if envFile != "" {
		// Variables already present in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Port, err = envInt("PORT", c.Port); err != nil {
		return err
	}
	c.LogLevel = envString("LOG_LEVEL", c.LogLevel)
	if c.LogPretty, err = envBool("LOG_PRETTY", c.LogPretty); err != nil {
		return err
	}

	if v := os.Getenv("IO_RATE_LIMIT"); v != "" {
		if c.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("invalid IO_RATE_LIMIT: %w", err)
		}
	}
	if c.Concurrency, err = envInt("IO_CONCURRENCY_LIMIT", c.Concurrency); err != nil {
		return err
	}
	if c.BatchSize, err = envInt("IO_BATCH_SIZE", c.BatchSize); err != nil {
		return err
	}
	if v := os.Getenv("IO_TIMEOUT"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid IO_TIMEOUT: %w", err)
		}
		c.ItemTimeout = time.Duration(ms) * time.Millisecond
	}

	c.APIKey = envString("YT_API_KEY", c.APIKey)
	c.APIBaseURL = envString("YT_API_BASE_URL", c.APIBaseURL)
	if c.QuotaDaily, err = envInt("YT_QUOTA_DAILY", c.QuotaDaily); err != nil {
		return err
	}

	c.RedisURL = envString("REDIS_URL", c.RedisURL)
	if c.CacheTTL, err = envDuration("CACHE_TTL", c.CacheTTL); err != nil {
		return err
	}
	if c.JobTTL, err = envDuration("JOB_TTL", c.JobTTL); err != nil {
		return err
	}
	if c.MaxJobs, err = envInt("MAX_JOBS", c.MaxJobs); err != nil {
		return err
	}

	c.CORSOrigins = envString("CORS_ALLOW_ORIGINS", c.CORSOrigins)
	c.DefaultBackend = strings.ToLower(envString("DEFAULT_BACKEND", c.DefaultBackend))
	c.ChromePath = envString("CHROME_PATH", c.ChromePath)
	if c.Headless, err = envBool("HEADLESS", c.Headless); err != nil {
		return err
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d out of range", c.Port)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("invalid IO_CONCURRENCY_LIMIT: must be positive, got %d", c.Concurrency)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid IO_BATCH_SIZE: must be positive, got %d", c.BatchSize)
	}
	if c.ItemTimeout <= 0 {
		return fmt.Errorf("invalid IO_TIMEOUT: must be positive, got %s", c.ItemTimeout)
	}
	switch c.DefaultBackend {
	case "scrape", "api":
	default:
		return fmt.Errorf("invalid DEFAULT_BACKEND: %q (want scrape or api)", c.DefaultBackend)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logging returns the logger configuration.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level, _ = logging.ParseLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Service returns the job service configuration.
func (c *Config) Service() jobs.Config {
	cfg := jobs.DefaultConfig()
	cfg.Pool = pool.Config{
		Concurrency:   c.Concurrency,
		BatchSize:     c.BatchSize,
		Timeout:       c.ItemTimeout,
		ProgressEvery: pool.DefaultConfig().ProgressEvery,
	}
	cfg.RateLimit = c.RateLimit
	cfg.JobTTL = c.JobTTL
	cfg.MaxJobs = c.MaxJobs
	return cfg
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
