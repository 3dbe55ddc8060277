// Package jobs runs batches of video ids as asynchronous jobs: a registry of
// job state, one driver goroutine per job, and the Service façade used by the
// HTTP layer and the CLI.
package jobs

import (
	"errors"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/video"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound is returned for an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrTerminal is returned when mutating a completed or failed job.
	ErrTerminal = errors.New("job is in a terminal state")

	// ErrNotReady is returned when results are requested before completion.
	ErrNotReady = errors.New("job not completed")

	// ErrJobFailed is returned when results are requested from a failed job.
	ErrJobFailed = errors.New("job failed")

	// ErrEmptyBatch is returned when a job is submitted without ids.
	ErrEmptyBatch = errors.New("video_ids must not be empty")

	// ErrUnknownBackend is returned for a backend name with no registered factory.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrShuttingDown is returned by Submit after Shutdown started.
	ErrShuttingDown = errors.New("service is shutting down")
)

// Progress counts processed items.
type Progress struct {
	Completed   int    `json:"completed"`
	Total       int    `json:"total"`
	CurrentItem string `json:"current_item"`
}

// JobError is the job-wide failure of a failed job.
type JobError struct {
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Job is one batch submission. Values returned by the Registry are copies.
type Job struct {
	ID       string   `json:"id"`
	Status   Status   `json:"status"`
	Backend  string   `json:"backend"`
	Progress Progress `json:"progress"`

	// Results and Errors are set together when the job completes.
	Results []video.Record     `json:"results"`
	Errors  []video.FetchError `json:"errors"`

	// Error is set only for failed jobs.
	Error *JobError `json:"error"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// start moves a pending job to running.
func (j *Job) start(now time.Time) {
	if j.Status != StatusPending {
		return
	}
	j.Status = StatusRunning
	j.StartedAt = &now
}

// advance records one finished item.
func (j *Job) advance(item string) {
	if j.Status != StatusRunning || j.Progress.Completed >= j.Progress.Total {
		return
	}
	j.Progress.Completed++
	j.Progress.CurrentItem = item
}

func (j *Job) complete(report Report, now time.Time) {
	j.Status = StatusCompleted
	j.Results = report.Results
	j.Errors = report.Errors
	j.Progress.CurrentItem = ""
	j.FinishedAt = &now
}

func (j *Job) fail(jobErr *JobError, now time.Time) {
	j.Status = StatusFailed
	j.Error = jobErr
	j.Results = nil
	j.Errors = nil
	j.Progress.CurrentItem = ""
	j.FinishedAt = &now
}

// clone returns a copy sharing nothing mutable with j.
func (j *Job) clone() Job {
	c := *j
	if j.Results != nil {
		c.Results = make([]video.Record, len(j.Results))
		for i, r := range j.Results {
			c.Results[i] = r.Clone()
		}
	}
	if j.Errors != nil {
		c.Errors = append([]video.FetchError(nil), j.Errors...)
		if c.Errors == nil {
			c.Errors = []video.FetchError{}
		}
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return c
}
