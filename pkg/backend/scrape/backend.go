// Package scrape implements the browser-driven metadata source: each id is
// opened as a watch page in a headless Chrome tab and read from the rendered
// page.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/vidmeta/pkg/backend"
	"github.com/Sternrassler/vidmeta/pkg/logging"
	"github.com/Sternrassler/vidmeta/pkg/video"
	"github.com/rs/zerolog"
)

// Name is the backend identifier used in job requests.
const Name = "scrape"

// ErrNotStarted is returned by Fetch before Open succeeded.
var ErrNotStarted = errors.New("browser not started")

// PageData is the raw data read from one watch page.
type PageData struct {
	Available     bool   `json:"available"`
	Reason        string `json:"reason"`
	Title         string `json:"title"`
	ViewCount     string `json:"viewCount"`
	LikeCount     string `json:"likeCount"`
	CommentCount  string `json:"commentCount"`
	PublishedAt   string `json:"publishedAt"`
	ChannelName   string `json:"channelName"`
	ChannelURL    string `json:"channelUrl"`
	ChannelID     string `json:"channelId"`
	Duration      string `json:"duration"`
	LengthSeconds string `json:"lengthSeconds"`
	Thumbnail     string `json:"thumbnail"`
	Locale        string `json:"locale"`
}

// Driver loads pages. ChromeDriver is the production implementation.
type Driver interface {
	Start(ctx context.Context) error
	Scrape(ctx context.Context, url string) (*PageData, error)
	Close() error
}

// Backend scrapes one id per call.
type Backend struct {
	driver  Driver
	started bool
	logger  zerolog.Logger
}

// New creates a scrape backend on top of driver.
func New(driver Driver) *Backend {
	return &Backend{
		driver: driver,
		logger: logging.NewLogger("backend-scrape"),
	}
}

// NewFactory returns a backend.Factory that starts a fresh browser per job.
func NewFactory(cfg ChromeConfig) backend.Factory {
	return func() (backend.Backend, error) {
		return New(NewChromeDriver(cfg)), nil
	}
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return Name }

// MaxBatch implements backend.Backend.
func (b *Backend) MaxBatch() int { return 1 }

// Open implements backend.Backend by starting the browser.
func (b *Backend) Open(ctx context.Context) error {
	if err := b.driver.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	b.started = true
	b.logger.Info().Msg("Browser started")
	return nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	if !b.started {
		return nil
	}
	b.started = false
	b.logger.Info().Msg("Browser stopped")
	return b.driver.Close()
}

// Fetch implements backend.Backend. ids holds a single id; larger slices are
// scraped one after another.
func (b *Backend) Fetch(ctx context.Context, ids []string) ([]video.Outcome, error) {
	if !b.started {
		return nil, ErrNotStarted
	}

	out := make([]video.Outcome, 0, len(ids))
	for _, id := range ids {
		page, err := b.driver.Scrape(ctx, video.WatchURL(id))
		if err != nil {
			b.logger.Warn().Err(err).Str("video_id", id).Msg("Scrape failed")
			out = append(out, video.Failure(video.NewFetchError(id, video.ClassTransient, "scrape failed", err)))
			continue
		}
		if !page.Available {
			reason := page.Reason
			if reason == "" {
				reason = "video unavailable"
			}
			out = append(out, video.Failure(video.FetchError{
				VideoID: id,
				Message: "video unavailable",
				Detail:  reason,
				Class:   video.ClassUnavailable,
			}))
			continue
		}
		out = append(out, video.Success(toRecord(id, page)))
	}
	return out, nil
}

// toRecord maps page data onto the record schema. The watch page does not
// expose upload date, shares or dislikes.
func toRecord(id string, p *PageData) video.Record {
	rec := video.NewRecord(id)
	rec.Set(video.FieldTitle, strings.TrimSpace(p.Title))
	rec.Set(video.FieldViewCount, video.ParseCount(p.ViewCount))
	rec.Set(video.FieldLikeCount, video.ParseCount(p.LikeCount))
	rec.Set(video.FieldCommentCount, video.ParseCount(p.CommentCount))
	rec.Set(video.FieldPublishedAt, p.PublishedAt)
	rec.Set(video.FieldChannelName, strings.TrimSpace(p.ChannelName))
	rec.Set(video.FieldURL, video.WatchURL(id))
	rec.Set(video.FieldThumbnailURL, p.Thumbnail)

	channelID := video.ChannelHandle(p.ChannelURL)
	if channelID == video.Unknown && p.ChannelID != "" {
		channelID = p.ChannelID
	}
	rec.Set(video.FieldChannelID, channelID)

	if secs, ok := video.ParseISODuration(p.Duration); ok {
		rec.Set(video.FieldDurationSeconds, fmt.Sprint(secs))
	} else if p.LengthSeconds != "" {
		rec.Set(video.FieldDurationSeconds, video.ParseCount(p.LengthSeconds))
	}

	lang, country := video.ParseLocale(p.Locale)
	rec.Set(video.FieldLanguageCode, lang)
	rec.Set(video.FieldLanguageName, video.LanguageName(lang))
	rec.Set(video.FieldCountry, country)

	rec.Set(video.FieldUploadDate, video.Unknown)
	rec.Set(video.FieldShareCount, video.Unknown)
	rec.Set(video.FieldDislikeCount, video.Unknown)
	rec.Set(video.FieldSource, Name)
	return rec
}
