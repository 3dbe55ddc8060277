package dataapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/vidmeta/internal/testutil"
)

const testKey = "test-key"

// fastPolicy keeps retry tests quick while exercising the same code path.
func fastPolicy(ErrorClass) RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestClient(t *testing.T, mock *testutil.MockYouTube) *Client {
	t.Helper()
	cfg := DefaultConfig(testKey)
	cfg.BaseURL = mock.URL()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c.SetRetryPolicy(fastPolicy)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError error
	}{
		{
			name:   "valid config",
			config: DefaultConfig("abc"),
		},
		{
			name:        "missing key",
			config:      Config{},
			expectError: ErrMissingAPIKey,
		},
		{
			name:        "blank key",
			config:      Config{APIKey: "   "},
			expectError: ErrMissingAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("New() error = %v, want %v", err, tt.expectError)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if c.config.BaseURL != DefaultBaseURL {
				t.Errorf("BaseURL = %s, want %s", c.config.BaseURL, DefaultBaseURL)
			}
		})
	}
}

func TestListVideos_Success(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.AddVideo(testutil.MockVideo{ID: "a", Title: "First", ViewCount: "10", Duration: "PT1M"})
	mock.AddVideo(testutil.MockVideo{ID: "b", Title: "Second", ViewCount: "20"})

	c := newTestClient(t, mock)
	resp, err := c.ListVideos(context.Background(), []string{"a", "b", "missing"})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}

	if len(resp.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].Snippet.Title != "First" {
		t.Errorf("title = %s, want First", resp.Items[0].Snippet.Title)
	}
	if resp.Items[0].ContentDetails.Duration != "PT1M" {
		t.Errorf("duration = %s, want PT1M", resp.Items[0].ContentDetails.Duration)
	}

	if got := mock.LastQuery.Get("part"); got != strings.Join(VideoParts, ",") {
		t.Errorf("part = %s", got)
	}
	if got := mock.LastQuery.Get("id"); got != "a,b,missing" {
		t.Errorf("id = %s, want a,b,missing", got)
	}
}

func TestListVideos_Empty(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()

	c := newTestClient(t, mock)
	resp, err := c.ListVideos(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(resp.Items) != 0 || mock.GetRequestCount() != 0 {
		t.Error("empty id list should not hit the API")
	}
}

func TestListVideos_TooManyIDs(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()

	c := newTestClient(t, mock)
	ids := make([]string, MaxIDsPerRequest+1)
	for i := range ids {
		ids[i] = "x"
	}
	if _, err := c.ListVideos(context.Background(), ids); err == nil {
		t.Error("expected error for more than 50 ids")
	}
}

func TestListVideos_ErrorClasses(t *testing.T) {
	tests := []struct {
		name         string
		failures     []testutil.MockResponse
		wantClass    ErrorClass
		wantRequests int
		wantSuccess  bool
	}{
		{
			name:         "quota exceeded is not retried",
			failures:     []testutil.MockResponse{testutil.NewQuotaExceededResponse()},
			wantClass:    ErrorClassQuota,
			wantRequests: 1,
		},
		{
			name:         "invalid key is not retried",
			failures:     []testutil.MockResponse{testutil.NewInvalidKeyResponse()},
			wantClass:    ErrorClassAuth,
			wantRequests: 1,
		},
		{
			name:         "server error recovers on retry",
			failures:     []testutil.MockResponse{testutil.NewServerErrorResponse()},
			wantRequests: 2,
			wantSuccess:  true,
		},
		{
			name: "rate limit exhausts retries",
			failures: []testutil.MockResponse{
				testutil.NewRateLimitResponse(),
				testutil.NewRateLimitResponse(),
				testutil.NewRateLimitResponse(),
			},
			wantClass:    ErrorClassRateLimit,
			wantRequests: 3,
		},
		{
			name:         "plain 404 is a client error",
			failures:     []testutil.MockResponse{{StatusCode: http.StatusNotFound}},
			wantClass:    ErrorClassClient,
			wantRequests: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockYouTube(testKey)
			defer mock.Close()
			mock.AddVideo(testutil.MockVideo{ID: "a", Title: "A"})
			mock.FailNext(tt.failures...)

			c := newTestClient(t, mock)
			resp, err := c.ListVideos(context.Background(), []string{"a"})

			if tt.wantSuccess {
				if err != nil {
					t.Fatalf("ListVideos() error = %v", err)
				}
				if len(resp.Items) != 1 {
					t.Errorf("items = %d, want 1", len(resp.Items))
				}
			} else {
				if err == nil {
					t.Fatal("expected error")
				}
				if got := ClassOf(err); got != tt.wantClass {
					t.Errorf("ClassOf(err) = %q, want %q (err=%v)", got, tt.wantClass, err)
				}
			}
			if got := mock.GetRequestCount(); got != tt.wantRequests {
				t.Errorf("requests = %d, want %d", got, tt.wantRequests)
			}
		})
	}
}

func TestListVideos_RetryExhaustedWrapsCause(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.FailNext(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())

	c := newTestClient(t, mock)
	_, err := c.ListVideos(context.Background(), []string{"a"})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error should wrap the last APIError, got %v", err)
	}
}

func TestListVideos_AttemptHook(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.AddVideo(testutil.MockVideo{ID: "a"})
	mock.FailNext(testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse())

	c := newTestClient(t, mock)
	attempts := 0
	c.SetAttemptHook(func(context.Context) error {
		attempts++
		return nil
	})

	if _, err := c.ListVideos(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if attempts != 3 || mock.GetRequestCount() != 3 {
		t.Errorf("attempts = %d, requests = %d, want 3 each", attempts, mock.GetRequestCount())
	}

	refused := errors.New("no budget")
	c.SetAttemptHook(func(context.Context) error { return refused })
	_, err := c.ListVideos(context.Background(), []string{"a"})
	if !errors.Is(err, refused) {
		t.Errorf("ListVideos() error = %v, want hook error", err)
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("refused attempt reached the API (requests = %d)", mock.GetRequestCount())
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorClass
		reason string
	}{
		{"daily limit", 403, `{"error":{"code":403,"message":"x","errors":[{"reason":"dailyLimitExceeded"}]}}`, ErrorClassQuota, "dailyLimitExceeded"},
		{"user rate limit", 403, `{"error":{"code":403,"message":"x","errors":[{"reason":"userRateLimitExceeded"}]}}`, ErrorClassRateLimit, "userRateLimitExceeded"},
		{"key invalid reason", 400, `{"error":{"code":400,"message":"x","errors":[{"reason":"keyInvalid"}]}}`, ErrorClassAuth, "keyInvalid"},
		{"generic 403", 403, `{"error":{"code":403,"message":"x","errors":[{"reason":"videoNotFound"}]}}`, ErrorClassClient, "videoNotFound"},
		{"unauthorized", 401, ``, ErrorClassAuth, ""},
		{"too many requests", 429, `not json`, ErrorClassRateLimit, ""},
		{"server", 500, ``, ErrorClassServer, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.status, []byte(tt.body))
			if got.ErrorClass != tt.want {
				t.Errorf("ErrorClass = %q, want %q", got.ErrorClass, tt.want)
			}
			if got.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.reason)
			}
			if got.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.status)
			}
		})
	}
}

func TestSnippet_BestThumbnail(t *testing.T) {
	s := Snippet{Thumbnails: map[string]Thumbnail{
		"default": {URL: "d"},
		"high":    {URL: "h"},
	}}
	if got := s.BestThumbnail(); got != "h" {
		t.Errorf("BestThumbnail() = %s, want h", got)
	}
	if got := (Snippet{}).BestThumbnail(); got != "" {
		t.Errorf("BestThumbnail() on empty = %s, want empty", got)
	}
}
