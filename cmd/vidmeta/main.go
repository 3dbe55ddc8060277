// Command vidmeta harvests metadata for the video ids of a CSV file and writes
// the records to an output CSV, with failures in a sibling _error.csv file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/vidmeta/internal/app"
	"github.com/Sternrassler/vidmeta/internal/config"
	"github.com/Sternrassler/vidmeta/internal/csvio"
	"github.com/Sternrassler/vidmeta/pkg/backend"
	apibackend "github.com/Sternrassler/vidmeta/pkg/backend/api"
	"github.com/Sternrassler/vidmeta/pkg/backend/scrape"
	"github.com/Sternrassler/vidmeta/pkg/jobs"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// compareBackend runs the api and scrape backends side by side.
const compareBackend = "both"

// scrapedPrefix marks the scrape columns of a comparison report.
const scrapedPrefix = "scraped_"

type options struct {
	input   string
	column  string
	output  string
	backend string
	fields  string
	dryRun  bool
}

// summary describes a finished run.
type summary struct {
	Jobs    []jobs.Job
	Records int
	Errors  int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.input, "input", "", "Input CSV file with video ids")
	flag.StringVar(&opts.column, "column", csvio.DefaultIDColumn, "Name of the video id column")
	flag.StringVar(&opts.output, "output", "", "Output CSV file (default: <input>-out.csv)")
	flag.StringVar(&opts.backend, "backend", cfg.DefaultBackend, "Metadata source: scrape, api or both")
	flag.StringVar(&opts.fields, "include-fields", "", "Comma separated record fields to write (default: all)")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "Fetch but do not write output files")
	flag.Parse()

	if opts.input == "" && flag.NArg() > 0 {
		opts.input = flag.Arg(0)
	}
	if opts.input == "" {
		fmt.Fprintln(os.Stderr, "Usage: vidmeta [-column yt_video_id] [-output out.csv] [-backend scrape|api|both] [-include-fields title,view_count] [-dry-run] <input.csv>")
		os.Exit(2)
	}

	logCfg := cfg.Logging()
	logCfg.Pretty = true
	logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis setup failed")
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	quota := app.NewQuotaTracker(cfg, redisClient)
	sum, err := run(ctx, opts, cfg, app.Factories(cfg, redisClient, quota), os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}
	log.Info().
		Int("jobs", len(sum.Jobs)).
		Int("records", sum.Records).
		Int("errors", sum.Errors).
		Msg("Done")
}

// run executes the jobs in-process, drawing a progress bar on progress. Unless
// opts.dryRun is set, outcomes are written as they arrive, so an interrupted or
// failed job still leaves its partial results on disk.
func run(ctx context.Context, opts options, cfg *config.Config, factories map[string]backend.Factory, progress io.Writer) (summary, error) {
	ids, err := csvio.ReadIDsFile(opts.input, opts.column)
	if err != nil {
		return summary{}, fmt.Errorf("read input: %w", err)
	}
	fields, err := csvio.ParseFields(opts.fields)
	if err != nil {
		return summary{}, fmt.Errorf("invalid -include-fields: %w", err)
	}
	if opts.output == "" {
		opts.output = csvio.DefaultOutputPath(opts.input)
	}

	service := jobs.NewService(cfg.Service(), factories, nil)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		service.Shutdown(shutdownCtx)
	}()

	name := strings.ToLower(opts.backend)
	if _, ok := factories[name]; !ok && name != compareBackend {
		return summary{}, fmt.Errorf("%w: %q", jobs.ErrUnknownBackend, opts.backend)
	}
	if name == compareBackend {
		return runCompare(ctx, opts, ids, fields, service, progress)
	}

	var sink *csvio.Sink
	var submitOpts []jobs.SubmitOption
	if !opts.dryRun {
		if sink, err = csvio.NewSink(opts.output, name, fields, cfg.BatchSize); err != nil {
			return summary{}, err
		}
		submitOpts = append(submitOpts, jobs.WithOutcomeSink(sink.Add))
	}

	id, err := service.Submit(ids, name, submitOpts...)
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return summary{}, err
	}
	log.Info().
		Str("job_id", id).
		Str("backend", name).
		Int("total", len(ids)).
		Str("input", opts.input).
		Msg("Job submitted")

	finished, err := wait(ctx, service, []string{id}, len(ids), name, progress)
	if err != nil {
		return summary{}, err
	}
	job := finished[0]
	sum := summary{Jobs: finished, Records: len(job.Results), Errors: len(job.Errors)}

	if sink != nil {
		closeErr := sink.Close()
		sum.Records, sum.Errors = sink.Counts()
		if closeErr != nil {
			return sum, fmt.Errorf("write output: %w", closeErr)
		}
		log.Info().
			Str("output", opts.output).
			Int("records", sum.Records).
			Int("errors", sum.Errors).
			Msg("Wrote results")
	} else {
		log.Info().Msg("Dry run, skipping output files")
	}

	if job.Status == jobs.StatusFailed {
		return sum, fmt.Errorf("job %s failed: %w", id, job.Error)
	}
	return sum, nil
}

// runCompare fetches every id from both backends and joins the records by
// video id, the scrape columns carrying scrapedPrefix.
func runCompare(ctx context.Context, opts options, ids []string, fields []video.Field, service *jobs.Service, progress io.Writer) (summary, error) {
	cmp := csvio.NewComparison(apibackend.Name, scrape.Name, scrapedPrefix, fields)

	var jobIDs []string
	for _, name := range []string{apibackend.Name, scrape.Name} {
		id, err := service.Submit(ids, name, jobs.WithOutcomeSink(cmp.Sink(name)))
		if err != nil {
			return summary{}, fmt.Errorf("submit %s job: %w", name, err)
		}
		log.Info().Str("job_id", id).Str("backend", name).Int("total", len(ids)).Msg("Job submitted")
		jobIDs = append(jobIDs, id)
	}

	finished, err := wait(ctx, service, jobIDs, 2*len(ids), compareBackend, progress)
	if err != nil {
		return summary{}, err
	}

	apiCount, scrapedCount, failures := cmp.Counts()
	log.Info().Msgf("Extracted videos: scraped / api / totals = %d / %d / %d", scrapedCount, apiCount, len(ids))
	sum := summary{Jobs: finished, Records: apiCount + scrapedCount, Errors: failures}

	if opts.dryRun {
		log.Info().Msg("Dry run, skipping output files")
	} else {
		if err := cmp.Write(opts.output, ids); err != nil {
			return sum, err
		}
		log.Info().Str("output", opts.output).Msg("Wrote comparison")
	}

	var failed []error
	for _, job := range finished {
		if job.Status == jobs.StatusFailed {
			failed = append(failed, fmt.Errorf("%s job %s failed: %w", job.Backend, job.ID, job.Error))
		}
	}
	return sum, errors.Join(failed...)
}

// wait drives the progress bar until every job is terminal. On interrupt it
// shuts the service down, which fails the running jobs, and returns their
// final state.
func wait(ctx context.Context, service *jobs.Service, ids []string, total int, label string, progress io.Writer) ([]jobs.Job, error) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
	)

	pollErr := poll(ctx, service, ids, bar)
	bar.Finish()
	fmt.Fprintln(progress)
	if pollErr != nil {
		log.Warn().Err(pollErr).Msg("Interrupted, stopping jobs")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		service.Shutdown(shutdownCtx)
	}

	out := make([]jobs.Job, 0, len(ids))
	for _, id := range ids {
		job, err := service.Status(id)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// poll refreshes the bar until every job is terminal or ctx is done.
func poll(ctx context.Context, service *jobs.Service, ids []string, bar *progressbar.ProgressBar) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		completed, done := 0, true
		for _, id := range ids {
			job, err := service.Status(id)
			if err != nil {
				return err
			}
			completed += job.Progress.Completed
			done = done && job.Status.IsTerminal()
		}
		bar.Set(completed)
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.New("interrupted")
		case <-ticker.C:
		}
	}
}
