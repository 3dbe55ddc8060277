// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel validates a level name such as "debug" or "WARN".
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}

// parseLevel converts LogLevel to zerolog.Level; unknown names mean Info.
func parseLevel(level LogLevel) zerolog.Level {
	switch l, _ := ParseLevel(string(level)); l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Context field names shared by all packages.
const (
	FieldComponent  = "component"
	FieldJobID      = "job_id"
	FieldBackend    = "backend"
	FieldVideoID    = "video_id"
	FieldErrorClass = "error_class"
)

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// ForJob derives a logger tagged with the job and backend it works for.
func ForJob(logger zerolog.Logger, jobID, backend string) zerolog.Logger {
	return logger.With().Str(FieldJobID, jobID).Str(FieldBackend, backend).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Per-unit dispatch and completion inside the pool
//   - Internal state changes
//
// Info: Normal operation events
//   - Job submitted, started, finished
//   - Browser started / stopped
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Quota warnings (less than 10% left)
//   - Retry attempts
//   - Cache errors (fallback to upstream fetch)
//   - Per-item fetch failures
//
// Error: Error conditions requiring attention
//   - Job failed (backend init, fatal backend error)
//   - Daily quota exhausted
//   - Configuration errors
//
// Context Fields:
//   - component: Emitting subsystem (pool, jobs, scrape, youtube-api, ...)
//   - job_id: Job identifier
//   - backend: Backend name (scrape, api)
//   - video_id: Video being fetched
//   - status_code: HTTP status code
//   - duration: Operation duration
//   - error_class: Error classification (client, auth, quota, server, rate_limit, network)
//   - completed / total: Job progress counters
