package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/pool"
	"github.com/Sternrassler/vidmeta/pkg/ratelimit"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubBackend succeeds for every id except "bad", and blocks on gate when set.
type stubBackend struct {
	gate chan struct{}
}

func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) MaxBatch() int { return 1 }
func (s *stubBackend) Open(ctx context.Context) error { return nil }
func (s *stubBackend) Close() error { return nil }

func (s *stubBackend) Fetch(ctx context.Context, ids []string) ([]video.Outcome, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if ids[0] == "bad" {
		return nil, errors.New("page failed to load")
	}
	rec := video.NewRecord(ids[0])
	rec.Set(video.FieldTitle, "title "+ids[0])
	return []video.Outcome{video.Success(rec)}, nil
}

type testServer struct {
	service *jobs.Service
	hub     *Hub
	router  *gin.Engine
}

func newTestServer(t *testing.T, stub *stubBackend) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	cfg := jobs.DefaultConfig()
	cfg.Pool = pool.Config{Concurrency: 2, BatchSize: 10, Timeout: 2 * time.Second}
	cfg.RateLimit = 0
	svc := jobs.NewService(cfg, map[string]backend.Factory{
		"stub":   func() (backend.Backend, error) { return stub, nil },
		"broken": func() (backend.Backend, error) { return nil, errors.New("no browser") },
	}, hub)

	t.Cleanup(func() {
		if stub.gate != nil {
			select {
			case <-stub.gate:
			default:
				close(stub.gate)
			}
		}
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		svc.Shutdown(sctx)
		cancel()
	})

	router := NewRouter(svc, hub, RouterConfig{CORSOrigins: "*", DefaultBackend: "stub"})
	return &testServer{service: svc, hub: hub, router: router}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) submit(t *testing.T, ids ...string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/jobs", gin.H{"video_ids": ids})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	return resp.JobID
}

func (s *testServer) wait(t *testing.T, id string) jobs.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := s.service.Wait(ctx, id, 5*time.Millisecond)
	require.NoError(t, err)
	return job
}

func TestRouter_SubmitAndFetchResults(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	id := s.submit(t, "a1", " ", "bad", "c3")
	s.wait(t, id)

	w := s.do(http.MethodGet, "/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job jobs.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, 3, job.Progress.Total)
	assert.Equal(t, 3, job.Progress.Completed)

	w = s.do(http.MethodGet, "/jobs/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report jobs.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Len(t, report.Results, 2)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "bad", report.Errors[0].VideoID)
	assert.Equal(t, video.ClassTransient, report.Errors[0].Class)
}

func TestRouter_LegacyRoutes(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	w := s.do(http.MethodPost, "/scrape", gin.H{"video_ids": []string{"x"}, "backend": "STUB"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	s.wait(t, resp.JobID)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/status/"+resp.JobID, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/results/"+resp.JobID, nil).Code)
}

func TestRouter_SubmitValidation(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty list", gin.H{"video_ids": []string{}}, http.StatusBadRequest},
		{"blank ids only", gin.H{"video_ids": []string{"", "  "}}, http.StatusBadRequest},
		{"unknown backend", gin.H{"video_ids": []string{"a"}, "backend": "ftp"}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/jobs", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestRouter_UnknownJob(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	for _, path := range []string{"/jobs/nope", "/jobs/nope/results", "/jobs/nope/ws"} {
		w := s.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestRouter_ResultsNotReady(t *testing.T) {
	s := newTestServer(t, &stubBackend{gate: make(chan struct{})})

	id := s.submit(t, "a1")
	w := s.do(http.MethodGet, "/jobs/"+id+"/results", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_FailedJobResults(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	w := s.do(http.MethodPost, "/jobs", gin.H{"video_ids": []string{"a"}, "backend": "broken"})
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	job := s.wait(t, resp.JobID)
	require.Equal(t, jobs.StatusFailed, job.Status)

	w = s.do(http.MethodGet, "/jobs/"+resp.JobID+"/results", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "backend initialization failed")
}

func TestRouter_ListAndHealth(t *testing.T) {
	s := newTestServer(t, &stubBackend{})
	s.wait(t, s.submit(t, "a"))

	w := s.do(http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Jobs  []jobs.Job `json:"jobs"`
		Stats jobs.Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Jobs, 1)

	w = s.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w = s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "vidmeta_jobs_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := newTestServer(t, &stubBackend{})

	req := httptest.NewRequest(http.MethodOptions, "/jobs", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_WebSocketStreamsEvents(t *testing.T) {
	s := newTestServer(t, &stubBackend{})
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	id := s.submit(t, "a", "b")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last jobs.Event
	for last.Type != jobs.EventComplete {
		require.NoError(t, conn.ReadJSON(&last))
		assert.Equal(t, id, last.JobID)
	}
	assert.Equal(t, jobs.StatusCompleted, last.Status)
	assert.Equal(t, 2, last.Completed)
	assert.Equal(t, 2, last.Total)
	assert.InDelta(t, 100.0, last.Percent, 0.001)
}

func TestRouter_HealthReportsQuota(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	svc := jobs.NewService(jobs.DefaultConfig(), nil, nil)
	defer svc.Shutdown(context.Background())

	quota := ratelimit.NewQuotaTracker(nil, 10, zerolog.Nop())
	require.NoError(t, quota.Reserve(context.Background(), 6))
	router := NewRouter(svc, hub, RouterConfig{CORSOrigins: "*", Quota: quota})

	health := func() map[string]any {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body
	}

	body := health()
	assert.Equal(t, "healthy", body["status"])
	q, ok := body["quota"].(map[string]any)
	require.True(t, ok, "health has no quota section: %v", body)
	assert.Equal(t, float64(6), q["used"])
	assert.Equal(t, float64(4), q["remaining"])
	assert.Equal(t, false, q["healthy"])
	assert.NotEmpty(t, q["reset_in"])

	require.NoError(t, quota.MarkExhausted(context.Background()))
	body = health()
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, float64(0), body["quota"].(map[string]any)["remaining"])
}

func TestRouter_Ready(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	svc := jobs.NewService(jobs.DefaultConfig(), nil, nil)
	defer svc.Shutdown(context.Background())

	var down error
	router := NewRouter(svc, hub, RouterConfig{
		CORSOrigins: "*",
		Ready:       func(ctx context.Context) error { return down },
	})

	get := func() int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get())
	down = errors.New("redis: connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, get())
}
