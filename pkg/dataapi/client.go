// Package dataapi is a small YouTube Data API v3 client for the videos.list
// endpoint with retry, error classification and metrics.
package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for API client operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidmeta_api_requests_total",
		Help: "Total YouTube Data API requests by status",
	}, []string{"status"})

	apiRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidmeta_api_request_duration_seconds",
		Help:    "YouTube Data API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidmeta_api_errors_total",
		Help: "Total YouTube Data API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of API errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents a missing, invalid or restricted API key.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassQuota represents an exhausted daily quota.
	ErrorClassQuota ErrorClass = "quota"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 and per-user rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// DefaultBaseURL is the YouTube Data API v3 root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// MaxIDsPerRequest is the upstream limit of ids per videos.list call.
const MaxIDsPerRequest = 50

// VideoParts are the resource parts requested for every video.
var VideoParts = []string{"snippet", "contentDetails", "statistics", "recordingDetails"}

// Client calls the YouTube Data API.
type Client struct {
	httpClient *http.Client
	config     Config
	policy     RetryPolicy
	logger     zerolog.Logger

	// beforeAttempt runs ahead of every HTTP attempt, retries included
	beforeAttempt func(ctx context.Context) error
}

// Config holds the client configuration.
type Config struct {
	// APIKey authenticates every request (REQUIRED)
	APIKey string

	// BaseURL overrides the API root, e.g. for a mock server
	BaseURL string

	// RequestTimeout bounds a single HTTP attempt
	RequestTimeout time.Duration
}

// DefaultConfig returns a configuration with the production endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:         apiKey,
		BaseURL:        DefaultBaseURL,
		RequestTimeout: 30 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		config: cfg,
		policy: RetryConfigForErrorClass,
		logger: log.With().Str("component", "youtube-api").Logger(),
	}, nil
}

// ListVideos fetches up to MaxIDsPerRequest videos in one call.
// Ids unknown to the API are simply absent from the response.
func (c *Client) ListVideos(ctx context.Context, ids []string) (*VideoListResponse, error) {
	if len(ids) == 0 {
		return &VideoListResponse{}, nil
	}
	if len(ids) > MaxIDsPerRequest {
		return nil, fmt.Errorf("too many ids: %d > %d", len(ids), MaxIDsPerRequest)
	}

	q := url.Values{}
	q.Set("part", strings.Join(VideoParts, ","))
	q.Set("id", strings.Join(ids, ","))
	q.Set("key", c.config.APIKey)
	q.Set("maxResults", strconv.Itoa(MaxIDsPerRequest))
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/videos?" + q.Encode()

	var out VideoListResponse
	err := retryWithBackoff(ctx, c.policy, func() (ErrorClass, error) {
		if c.beforeAttempt != nil {
			if err := c.beforeAttempt(ctx); err != nil {
				// Not retried: a refused attempt would be refused again.
				return ErrorClassClient, fmt.Errorf("attempt refused: %w", err)
			}
		}
		return c.do(ctx, endpoint, &out)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("requested", len(ids)).
		Int("returned", len(out.Items)).
		Msg("videos.list complete")
	return &out, nil
}

// do performs one attempt and decodes a 200 body into out.
func (c *Client) do(ctx context.Context, endpoint string, out any) (ErrorClass, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ErrorClassClient, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Cancellation is not worth retrying.
			return ErrorClassClient, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		c.logger.Warn().Err(err).Msg("HTTP request failed")
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		apiRequestsTotal.WithLabelValues("network_error").Inc()
		return ErrorClassNetwork, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return ErrorClassNetwork, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
	}
	apiRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		apiErr := classifyError(resp.StatusCode, body)
		apiErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Str("reason", apiErr.Reason).
			Msg("YouTube API request error")
		return apiErr.ErrorClass, apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return ErrorClassClient, fmt.Errorf("decode response: %w", err)
	}
	return "", nil
}

// classifyError maps an HTTP error response to an APIError.
func classifyError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var env errorResponse
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Error.Message != "" {
			apiErr.Message = env.Error.Message
		}
		if len(env.Error.Errors) > 0 {
			apiErr.Reason = env.Error.Errors[0].Reason
		}
	}

	switch apiErr.Reason {
	case "quotaExceeded", "dailyLimitExceeded":
		apiErr.ErrorClass = ErrorClassQuota
		return apiErr
	case "rateLimitExceeded", "userRateLimitExceeded":
		apiErr.ErrorClass = ErrorClassRateLimit
		return apiErr
	case "keyInvalid", "keyExpired", "accessNotConfigured", "forbidden", "ipRefererBlocked":
		apiErr.ErrorClass = ErrorClassAuth
		return apiErr
	}
	if status == http.StatusBadRequest && strings.Contains(apiErr.Message, "API key not valid") {
		apiErr.ErrorClass = ErrorClassAuth
		return apiErr
	}

	switch {
	case status == http.StatusTooManyRequests:
		apiErr.ErrorClass = ErrorClassRateLimit
	case status == http.StatusUnauthorized:
		apiErr.ErrorClass = ErrorClassAuth
	case status >= 400 && status < 500:
		apiErr.ErrorClass = ErrorClassClient
	default:
		apiErr.ErrorClass = ErrorClassServer
	}
	return apiErr
}

// SetAttemptHook installs fn to run before every HTTP attempt. An error from
// fn aborts the call without sending the request and is wrapped in the result.
func (c *Client) SetAttemptHook(fn func(ctx context.Context) error) {
	c.beforeAttempt = fn
}

// SetRetryPolicy replaces the per-class retry configuration (for testing).
func (c *Client) SetRetryPolicy(policy RetryPolicy) {
	c.policy = policy
}
