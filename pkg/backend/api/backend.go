// Package api implements the YouTube Data API metadata source.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/dataapi"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/ratelimit"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog"
)

// Name is the backend identifier used in job requests.
const Name = "api"

// unitsPerCall is the quota cost of one videos.list request.
const unitsPerCall = 1

// Backend fetches records through videos.list, up to 50 ids per call.
type Backend struct {
	client *dataapi.Client
	quota  *ratelimit.QuotaTracker
	logger zerolog.Logger
}

// New creates an API backend. quota may be nil to disable local accounting.
// Every HTTP attempt of client, retries included, is charged to quota.
func New(client *dataapi.Client, quota *ratelimit.QuotaTracker) *Backend {
	b := &Backend{
		client: client,
		quota:  quota,
		logger: logging.NewLogger("backend-api"),
	}
	if client != nil && quota != nil {
		client.SetAttemptHook(b.reserve)
	}
	return b
}

// NewFactory returns a backend.Factory building a client from cfg for each job.
// A missing API key surfaces when the job opens its backend.
func NewFactory(cfg dataapi.Config, quota *ratelimit.QuotaTracker) backend.Factory {
	return func() (backend.Backend, error) {
		client, err := dataapi.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("create api client: %w", err)
		}
		return New(client, quota), nil
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// MaxBatch implements backend.Backend.
func (b *Backend) MaxBatch() int { return dataapi.MaxIDsPerRequest }

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context) error {
	if b.client == nil {
		return errors.New("api backend has no client")
	}
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error { return nil }

// Fetch implements backend.Backend. Ids missing from the response are left
// out so the caller reports them as unavailable.
func (b *Backend) Fetch(ctx context.Context, ids []string) ([]video.Outcome, error) {
	resp, err := b.client.ListVideos(ctx, ids)
	if err != nil {
		if errors.Is(err, ratelimit.ErrQuotaExhausted) {
			return quotaFailures(ids, err), nil
		}
		switch dataapi.ClassOf(err) {
		case dataapi.ErrorClassAuth:
			return nil, backend.Fatal(err)
		case dataapi.ErrorClassQuota:
			if b.quota != nil {
				if markErr := b.quota.MarkExhausted(ctx); markErr != nil {
					b.logger.Warn().Err(markErr).Msg("Failed to record exhausted quota")
				}
			}
			return quotaFailures(ids, err), nil
		}
		return nil, err
	}

	out := make([]video.Outcome, 0, len(resp.Items))
	for _, item := range resp.Items {
		out = append(out, video.Success(toRecord(item)))
	}

	b.logger.Debug().
		Int("requested", len(ids)).
		Int("found", len(out)).
		Msg("Fetched batch from API")
	return out, nil
}

// reserve charges one request to the daily quota. Accounting failures other
// than exhaustion let the request through.
func (b *Backend) reserve(ctx context.Context) error {
	err := b.quota.Reserve(ctx, unitsPerCall)
	if err == nil || errors.Is(err, ratelimit.ErrQuotaExhausted) {
		return err
	}
	b.logger.Warn().Err(err).Msg("Quota accounting unavailable, calling API anyway")
	return nil
}

func quotaFailures(ids []string, err error) []video.Outcome {
	out := make([]video.Outcome, len(ids))
	for i, id := range ids {
		out[i] = video.Failure(video.NewFetchError(id, video.ClassQuota, "daily API quota exhausted", err))
	}
	return out
}

// toRecord maps one videos.list item onto the record schema.
func toRecord(item dataapi.VideoItem) video.Record {
	rec := video.NewRecord(item.ID)
	s := item.Snippet
	stats := item.Statistics

	rec.Set(video.FieldTitle, s.Title)
	rec.Set(video.FieldViewCount, stats.ViewCount)
	rec.Set(video.FieldLikeCount, stats.LikeCount)
	rec.Set(video.FieldCommentCount, stats.CommentCount)
	rec.Set(video.FieldDislikeCount, stats.DislikeCount)
	rec.Set(video.FieldPublishedAt, s.PublishedAt)
	if date, _, ok := strings.Cut(s.PublishedAt, "T"); ok {
		rec.Set(video.FieldUploadDate, date)
	}
	rec.Set(video.FieldChannelID, s.ChannelID)
	rec.Set(video.FieldChannelName, s.ChannelTitle)
	rec.Set(video.FieldURL, video.WatchURL(item.ID))
	rec.Set(video.FieldThumbnailURL, s.BestThumbnail())

	if secs, ok := video.ParseISODuration(item.ContentDetails.Duration); ok {
		rec.Set(video.FieldDurationSeconds, fmt.Sprint(secs))
	}

	locale := s.DefaultAudioLanguage
	if locale == "" {
		locale = s.DefaultLanguage
	}
	lang, country := video.ParseLocale(locale)
	rec.Set(video.FieldLanguageCode, lang)
	rec.Set(video.FieldLanguageName, video.LanguageName(lang))
	rec.Set(video.FieldCountry, country)

	rec.Set(video.FieldSource, Name)
	return rec
}
