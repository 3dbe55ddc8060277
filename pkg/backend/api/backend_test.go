package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/vidmeta/internal/testutil"
	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/dataapi"
	"github.com/Sternrassler/vidmeta/pkg/ratelimit"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog"
)

const testKey = "test-key"

func newBackend(t *testing.T, mock *testutil.MockYouTube, quota *ratelimit.QuotaTracker) *Backend {
	t.Helper()
	cfg := dataapi.DefaultConfig(testKey)
	cfg.BaseURL = mock.URL()
	b, err := NewFactory(cfg, quota)()
	if err != nil {
		t.Fatalf("factory error = %v", err)
	}
	if err := b.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return b.(*Backend)
}

func TestFactory_MissingKey(t *testing.T) {
	_, err := NewFactory(dataapi.Config{}, nil)()
	if !errors.Is(err, dataapi.ErrMissingAPIKey) {
		t.Errorf("factory error = %v, want ErrMissingAPIKey", err)
	}
}

func TestBackend_Identity(t *testing.T) {
	b := New(nil, nil)
	if b.Name() != "api" {
		t.Errorf("Name() = %s, want api", b.Name())
	}
	if b.MaxBatch() != 50 {
		t.Errorf("MaxBatch() = %d, want 50", b.MaxBatch())
	}
	if err := b.Open(context.Background()); err == nil {
		t.Error("Open() without client should fail")
	}
}

func TestBackend_FetchMapsRecord(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.AddVideo(testutil.MockVideo{
		ID:           "abc",
		Title:        "A video",
		ChannelID:    "UC1",
		ChannelTitle: "Channel",
		PublishedAt:  "2024-03-01T12:00:00Z",
		Duration:     "PT1H2M3S",
		ViewCount:    "1000",
		LikeCount:    "50",
		Language:     "en-US",
	})

	b := newBackend(t, mock, nil)
	out, err := b.Fetch(context.Background(), []string{"abc", "gone"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("outcomes = %d, want 1 (unknown ids are left out)", len(out))
	}

	rec := out[0].Record
	tests := []struct {
		field video.Field
		want  string
	}{
		{video.FieldTitle, "A video"},
		{video.FieldViewCount, "1000"},
		{video.FieldLikeCount, "50"},
		{video.FieldCommentCount, video.Unknown},
		{video.FieldUploadDate, "2024-03-01"},
		{video.FieldPublishedAt, "2024-03-01T12:00:00Z"},
		{video.FieldChannelID, "UC1"},
		{video.FieldChannelName, "Channel"},
		{video.FieldURL, "https://www.youtube.com/watch?v=abc"},
		{video.FieldDurationSeconds, "3723"},
		{video.FieldThumbnailURL, "https://i.ytimg.com/vi/abc/hqdefault.jpg"},
		{video.FieldLanguageCode, "en"},
		{video.FieldLanguageName, "English"},
		{video.FieldCountry, "US"},
		{video.FieldShareCount, video.Unknown},
		{video.FieldSource, "api"},
	}
	for _, tt := range tests {
		if got := rec.Get(tt.field); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.field, got, tt.want)
		}
	}
}

func TestBackend_InvalidKeyIsFatal(t *testing.T) {
	mock := testutil.NewMockYouTube("other-key")
	defer mock.Close()

	b := newBackend(t, mock, nil)
	_, err := b.Fetch(context.Background(), []string{"abc"})
	if !backend.IsFatal(err) {
		t.Errorf("Fetch() error = %v, want fatal", err)
	}
}

func TestBackend_UpstreamQuotaExceeded(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.FailNext(testutil.NewQuotaExceededResponse())

	quota := ratelimit.NewQuotaTracker(nil, 100, zerolog.Nop())
	b := newBackend(t, mock, quota)

	out, err := b.Fetch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want per-item failures", err)
	}
	if len(out) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(out))
	}
	for _, o := range out {
		if o.Err == nil || o.Err.Class != video.ClassQuota {
			t.Errorf("outcome %s = %+v, want quota failure", o.VideoID, o.Err)
		}
	}

	// The tracker now refuses further calls without reaching the API.
	requests := mock.GetRequestCount()
	out, _ = b.Fetch(context.Background(), []string{"c"})
	if mock.GetRequestCount() != requests {
		t.Error("exhausted quota should not reach the API")
	}
	if len(out) != 1 || out[0].Err == nil || out[0].Err.Class != video.ClassQuota {
		t.Errorf("outcome = %+v, want quota failure", out)
	}
}

func TestBackend_ReservesQuota(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.AddVideo(testutil.MockVideo{ID: "a", Title: "A"})

	quota := ratelimit.NewQuotaTracker(nil, 2, zerolog.Nop())
	b := newBackend(t, mock, quota)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := b.Fetch(ctx, []string{"a"})
		if err != nil || len(out) != 1 || !out[0].OK() {
			t.Fatalf("call %d: out=%+v err=%v", i, out, err)
		}
	}

	state, err := quota.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Used != 2 {
		t.Errorf("Used = %d, want 2", state.Used)
	}

	out, _ := b.Fetch(ctx, []string{"a"})
	if out[0].Err == nil || out[0].Err.Class != video.ClassQuota {
		t.Errorf("third call should be refused, got %+v", out[0])
	}
	if mock.GetRequestCount() != 2 {
		t.Errorf("requests = %d, want 2", mock.GetRequestCount())
	}
}

func TestBackend_RetriesAreCharged(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.AddVideo(testutil.MockVideo{ID: "a", Title: "A"})
	mock.FailNext(testutil.NewServerErrorResponse())

	quota := ratelimit.NewQuotaTracker(nil, 10, zerolog.Nop())
	b := newBackend(t, mock, quota)
	b.client.SetRetryPolicy(func(dataapi.ErrorClass) dataapi.RetryConfig {
		return dataapi.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	})

	out, err := b.Fetch(context.Background(), []string{"a"})
	if err != nil || len(out) != 1 || !out[0].OK() {
		t.Fatalf("Fetch() out=%+v err=%v", out, err)
	}
	if mock.GetRequestCount() != 2 {
		t.Fatalf("requests = %d, want 2 (one retry)", mock.GetRequestCount())
	}

	state, err := quota.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Used != 2 {
		t.Errorf("Used = %d, want 2 (every attempt costs a unit)", state.Used)
	}
}

func TestBackend_RetryStopsAtExhaustedQuota(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.AddVideo(testutil.MockVideo{ID: "a", Title: "A"})
	mock.FailNext(testutil.NewServerErrorResponse())

	quota := ratelimit.NewQuotaTracker(nil, 1, zerolog.Nop())
	b := newBackend(t, mock, quota)
	b.client.SetRetryPolicy(func(dataapi.ErrorClass) dataapi.RetryConfig {
		return dataapi.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	})

	out, err := b.Fetch(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Fetch() error = %v, want per-item failures", err)
	}
	if len(out) != 1 || out[0].Err == nil || out[0].Err.Class != video.ClassQuota {
		t.Errorf("outcome = %+v, want quota failure", out)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("requests = %d, want 1 (retry refused by quota)", mock.GetRequestCount())
	}
}

func TestBackend_ServerErrorReturned(t *testing.T) {
	mock := testutil.NewMockYouTube(testKey)
	defer mock.Close()
	mock.SetResponse("/videos", testutil.MockResponse{StatusCode: 400, Body: `{"error":{"code":400,"message":"bad id"}}`})

	b := newBackend(t, mock, nil)
	_, err := b.Fetch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if backend.IsFatal(err) {
		t.Error("client errors are charged to the unit, not fatal")
	}
}
