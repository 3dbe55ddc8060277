package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SubmitRequest is the body of POST /jobs.
type SubmitRequest struct {
	VideoIDs []string `json:"video_ids"`
	Backend  string   `json:"backend"`
}

// JobService is the part of jobs.Service the handlers use.
type JobService interface {
	Submit(ids []string, backend string, opts ...jobs.SubmitOption) (string, error)
	Status(id string) (jobs.Job, error)
	Results(id string) (jobs.Report, error)
	List() []jobs.Job
	Stats() jobs.Stats
	Backends() []string
}

// JobHandler serves the job endpoints.
type JobHandler struct {
	service        JobService
	hub            *Hub
	defaultBackend string
	logger         zerolog.Logger
}

// NewJobHandler creates a job handler. Requests without a backend use defaultBackend.
func NewJobHandler(service JobService, hub *Hub, defaultBackend string, logger zerolog.Logger) *JobHandler {
	return &JobHandler{
		service:        service,
		hub:            hub,
		defaultBackend: defaultBackend,
		logger:         logger,
	}
}

// Submit starts a job and answers 202 with its id.
func (h *JobHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ids := make([]string, 0, len(req.VideoIDs))
	for _, id := range req.VideoIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	backend := strings.ToLower(strings.TrimSpace(req.Backend))
	if backend == "" {
		backend = h.defaultBackend
	}

	id, err := h.service.Submit(ids, backend)
	switch {
	case errors.Is(err, jobs.ErrEmptyBatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, jobs.ErrUnknownBackend):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    err.Error(),
			"backends": h.service.Backends(),
		})
		return
	case errors.Is(err, jobs.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("Failed to submit job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  id,
		"message": "Job accepted",
	})
}

// Status returns the job snapshot.
func (h *JobHandler) Status(c *gin.Context) {
	job, err := h.service.Status(c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Results returns the report of a completed job.
func (h *JobHandler) Results(c *gin.Context) {
	report, err := h.service.Results(c.Param("id"))
	if err == nil {
		c.JSON(http.StatusOK, report)
		return
	}

	var jobErr *jobs.JobError
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrJobFailed) && errors.As(err, &jobErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     jobs.ErrJobFailed.Error(),
			"job_error": jobErr,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// List returns every job without per-item payloads.
func (h *JobHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs":  h.service.List(),
		"stats": h.service.Stats(),
	})
}

// Subscribe upgrades to a WebSocket streaming the events of one job.
func (h *JobHandler) Subscribe(c *gin.Context) {
	jobID := c.Param("id")
	if _, err := h.service.Status(jobID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	h.serveWS(c, jobID)
}

// SubscribeAll upgrades to a WebSocket streaming the events of every job.
func (h *JobHandler) SubscribeAll(c *gin.Context) {
	h.serveWS(c, allJobs)
}

func (h *JobHandler) serveWS(c *gin.Context, key string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	client := NewClient(h.hub, conn, key)
	h.hub.RegisterClient(client)
	client.StartPumps()
}

// ReadyCheck reports whether a dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// QuotaSource reports the daily API quota usage.
type QuotaSource interface {
	GetState(ctx context.Context) (*ratelimit.QuotaState, error)
}

// HealthHandler serves liveness and readiness information.
type HealthHandler struct {
	service JobService
	hub     *Hub
	ready   ReadyCheck
	quota   QuotaSource
	started time.Time
}

// NewHealthHandler creates a health handler. ready and quota may be nil.
func NewHealthHandler(service JobService, hub *Hub, ready ReadyCheck, quota QuotaSource) *HealthHandler {
	return &HealthHandler{service: service, hub: hub, ready: ready, quota: quota, started: time.Now()}
}

// HealthCheck returns the service status, registry counts and quota usage.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":     "healthy",
		"service":    "vidmeta",
		"uptime":     time.Since(h.started).Round(time.Second).String(),
		"backends":   h.service.Backends(),
		"jobs":       h.service.Stats(),
		"ws_clients": h.hub.ClientCount(),
		"timestamp":  time.Now().Unix(),
	}

	if h.quota != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		state, err := h.quota.GetState(ctx)
		if err != nil {
			resp["quota"] = gin.H{"error": err.Error()}
		} else {
			resp["quota"] = gin.H{
				"day":       state.Day,
				"used":      state.Used,
				"budget":    state.Budget,
				"remaining": state.Remaining(),
				"healthy":   state.IsHealthy(),
				"reset_in":  state.TimeUntilReset().Round(time.Second).String(),
			}
			if state.IsExhausted() {
				resp["status"] = "degraded"
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// Ready answers 503 while the readiness check fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
