package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/pool"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog"
)

// driver runs one job from pending to a terminal state.
type driver struct {
	jobID    string
	ids      []string
	factory  backend.Factory
	pool     *pool.Pool
	registry *Registry
	notifier Notifier
	sink     func(video.Outcome)
	logger   zerolog.Logger
}

func (d *driver) run(ctx context.Context) {
	jobsActive.Inc()
	defer jobsActive.Dec()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("Job driver panicked")
			d.fail(&JobError{Message: "internal error", Detail: fmt.Sprint(r)})
		}
	}()

	start := time.Now()
	b, err := d.factory()
	if err != nil {
		d.fail(&JobError{Message: "backend initialization failed", Detail: err.Error()})
		return
	}
	if err := b.Open(ctx); err != nil {
		d.fail(&JobError{Message: "backend initialization failed", Detail: err.Error()})
		return
	}
	defer func() {
		if err := b.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to close backend")
		}
	}()

	agg := NewAggregator(len(d.ids))
	hooks := pool.Hooks{
		OnDispatch: func(id string) {
			d.registry.update(d.jobID, func(j *Job) {
				if j.Status == StatusPending {
					j.start(time.Now())
					d.publish(j, EventStatus, "")
				}
				j.Progress.CurrentItem = id
			})
		},
		OnComplete: func(o video.Outcome) {
			agg.Add(o)
			if d.sink != nil {
				d.sink(o)
			}
			d.registry.update(d.jobID, func(j *Job) {
				j.start(time.Now())
				j.advance(o.VideoID)
				d.publish(j, EventProgress, "")
			})
			if o.Err != nil {
				d.logger.Debug().
					Str("video_id", o.VideoID).
					Str("error_class", string(o.Err.Class)).
					Msg(o.Err.Message)
			}
		},
	}

	runErr := d.pool.Run(ctx, d.ids, b, hooks)

	switch {
	case runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()):
		d.fail(&JobError{Message: "job cancelled", Detail: runErr.Error()})
	case runErr != nil:
		msg := "backend failure"
		if !backend.IsFatal(runErr) {
			msg = "job aborted"
		}
		d.fail(&JobError{Message: msg, Detail: runErr.Error()})
	case agg.Count() != len(d.ids):
		d.fail(&JobError{
			Message: "incomplete results",
			Detail:  fmt.Sprintf("%d of %d items reported", agg.Count(), len(d.ids)),
		})
	default:
		d.complete(agg.Report(), time.Since(start))
	}
}

func (d *driver) complete(report Report, elapsed time.Duration) {
	err := d.registry.update(d.jobID, func(j *Job) {
		j.start(time.Now())
		j.complete(report, time.Now())
		d.publish(j, EventComplete, fmt.Sprintf("%d succeeded, %d failed", len(report.Results), len(report.Errors)))
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("Could not complete job")
		return
	}
	jobsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	d.logger.Info().
		Int("results", len(report.Results)).
		Int("errors", len(report.Errors)).
		Dur("duration", elapsed).
		Msg("Job completed")
}

func (d *driver) fail(jobErr *JobError) {
	err := d.registry.update(d.jobID, func(j *Job) {
		j.fail(jobErr, time.Now())
		d.publish(j, EventError, jobErr.Error())
	})
	if err != nil {
		d.logger.Warn().Err(err).Msg("Could not fail job")
		return
	}
	jobsTotal.WithLabelValues(string(StatusFailed)).Inc()
	d.logger.Error().Str("error", jobErr.Error()).Msg("Job failed")
}

// publish is called with the registry lock held; Notifier.Publish does not block.
func (d *driver) publish(j *Job, typ, msg string) {
	d.notifier.Publish(Event{
		JobID:       j.ID,
		Type:        typ,
		Status:      j.Status,
		Completed:   j.Progress.Completed,
		Total:       j.Progress.Total,
		Percent:     percent(j.Progress.Completed, j.Progress.Total),
		CurrentItem: j.Progress.CurrentItem,
		Message:     msg,
		Timestamp:   time.Now(),
	})
}
