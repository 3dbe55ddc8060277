// Package testutil provides testing utilities for the vidmeta packages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockResponse defines a canned response for a mock endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockVideo is the subset of a videos.list item the mock serves.
type MockVideo struct {
	ID           string
	Title        string
	ChannelID    string
	ChannelTitle string
	PublishedAt  string
	Duration     string
	ViewCount    string
	LikeCount    string
	CommentCount string
	Language     string
}

// MockYouTube is a configurable mock of the YouTube Data API v3 for testing.
type MockYouTube struct {
	server   *httptest.Server
	apiKey   string
	mu       sync.RWMutex
	videos   map[string]MockVideo
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures []MockResponse

	// Tracking
	RequestCount int
	LastQuery    url.Values
}

// NewMockYouTube creates a mock API server that accepts apiKey.
func NewMockYouTube(apiKey string) *MockYouTube {
	mock := &MockYouTube{
		apiKey:   apiKey,
		videos:   make(map[string]MockVideo),
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastQuery = r.URL.Query()
		var failure *MockResponse
		if len(mock.failures) > 0 {
			f := mock.failures[0]
			mock.failures = mock.failures[1:]
			failure = &f
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failure != nil {
			writeResponse(w, *failure)
			return
		}
		if exists {
			handler(w, r)
			return
		}
		if r.URL.Path == "/videos" {
			mock.videosHandler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the API base URL.
func (m *MockYouTube) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockYouTube) Close() {
	m.server.Close()
}

// Reset clears tracking counters and queued failures.
func (m *MockYouTube) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
	m.failures = nil
}

// AddVideo makes v available through /videos.
func (m *MockYouTube) AddVideo(v MockVideo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[v.ID] = v
}

// FailNext queues responses served before normal handling resumes, one per request.
func (m *MockYouTube) FailNext(resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, resps...)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockYouTube) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockYouTube) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, resp)
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockYouTube) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockYouTube) videosHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("key") != m.apiKey {
		writeResponse(w, NewInvalidKeyResponse())
		return
	}

	items := make([]map[string]any, 0)
	m.mu.RLock()
	for _, id := range strings.Split(q.Get("id"), ",") {
		v, ok := m.videos[id]
		if !ok {
			continue
		}
		items = append(items, videoItem(v))
	}
	m.mu.RUnlock()

	body, _ := json.Marshal(map[string]any{
		"kind":  "youtube#videoListResponse",
		"items": items,
		"pageInfo": map[string]int{
			"totalResults":   len(items),
			"resultsPerPage": len(items),
		},
	})
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func videoItem(v MockVideo) map[string]any {
	stats := map[string]string{}
	if v.ViewCount != "" {
		stats["viewCount"] = v.ViewCount
	}
	if v.LikeCount != "" {
		stats["likeCount"] = v.LikeCount
	}
	if v.CommentCount != "" {
		stats["commentCount"] = v.CommentCount
	}
	return map[string]any{
		"kind": "youtube#video",
		"id":   v.ID,
		"snippet": map[string]any{
			"publishedAt":          v.PublishedAt,
			"channelId":            v.ChannelID,
			"title":                v.Title,
			"channelTitle":         v.ChannelTitle,
			"defaultAudioLanguage": v.Language,
			"thumbnails": map[string]any{
				"high": map[string]any{"url": fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", v.ID), "width": 480, "height": 360},
			},
		},
		"contentDetails": map[string]string{"duration": v.Duration},
		"statistics":     stats,
	}
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func googleError(status int, reason, message string) MockResponse {
	body, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": message,
			"errors": []map[string]string{
				{"message": message, "domain": "youtube.quota", "reason": reason},
			},
		},
	})
	return MockResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=UTF-8"},
	}
}

// NewQuotaExceededResponse creates the 403 returned once the daily quota is spent.
func NewQuotaExceededResponse() MockResponse {
	return googleError(http.StatusForbidden, "quotaExceeded",
		"The request cannot be completed because you have exceeded your quota.")
}

// NewInvalidKeyResponse creates the 400 returned for a bad API key.
func NewInvalidKeyResponse() MockResponse {
	return googleError(http.StatusBadRequest, "badRequest", "API key not valid. Please pass a valid API key.")
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return googleError(http.StatusTooManyRequests, "rateLimitExceeded", "Rate limit exceeded")
}

// NewServerErrorResponse creates a 503 backend error response.
func NewServerErrorResponse() MockResponse {
	return googleError(http.StatusServiceUnavailable, "backendError", "Backend Error")
}
