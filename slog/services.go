package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/ragkb"
)

var (
	_ ragkb.Scraper       = (*LoggingScraper)(nil)
	_ ragkb.SearchService = (*LoggingSearchService)(nil)
	_ ragkb.Embedder      = (*LoggingEmbedder)(nil)
)

// LoggingScraper logs each scrape with the content size and whether a
// failure is worth retrying.
type LoggingScraper struct {
	next       ragkb.Scraper
	sourceType ragkb.SourceType
	logger     *slog.Logger
}

// NewLoggingScraper creates a new LoggingScraper.
func NewLoggingScraper(next ragkb.Scraper, sourceType ragkb.SourceType, logger *slog.Logger) *LoggingScraper {
	return &LoggingScraper{next: next, sourceType: sourceType, logger: logger}
}

// Scrape delegates to the wrapped scraper.
func (s *LoggingScraper) Scrape(ctx context.Context, url string) (res *ragkb.ScrapeResult, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", url,
			"type", s.sourceType,
			"duration", time.Since(begin),
		}
		if res != nil {
			attrs = append(attrs, "chars", len(res.Content))
		}
		if err != nil {
			attrs = append(attrs, "temporary", ragkb.IsTemporary(err), "err", err)
		}
		s.logger.Info("scrape", attrs...)
	}(time.Now())
	return s.next.Scrape(ctx, url)
}

// WrapScrapers decorates every configured scraper in set.
func WrapScrapers(set ragkb.Scrapers, logger *slog.Logger) ragkb.Scrapers {
	wrap := func(sc ragkb.Scraper, t ragkb.SourceType) ragkb.Scraper {
		if sc == nil {
			return nil
		}
		return NewLoggingScraper(sc, t, logger)
	}
	return ragkb.Scrapers{
		Website:        wrap(set.Website, ragkb.SourceWebsite),
		GitHub:         wrap(set.GitHub, ragkb.SourceGitHub),
		YouTubeVideo:   wrap(set.YouTubeVideo, ragkb.SourceYouTubeVideo),
		YouTubeChannel: wrap(set.YouTubeChannel, ragkb.SourceYouTubeChannel),
	}
}

// LoggingSearchService logs each query with its mode and result count.
type LoggingSearchService struct {
	next   ragkb.SearchService
	logger *slog.Logger
}

// NewLoggingSearchService creates a new LoggingSearchService.
func NewLoggingSearchService(next ragkb.SearchService, logger *slog.Logger) *LoggingSearchService {
	return &LoggingSearchService{next: next, logger: logger}
}

// Search delegates to the wrapped service.
func (s *LoggingSearchService) Search(ctx context.Context, query string, opts ragkb.SearchOptions) (resp *ragkb.SearchResponse, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"query", query,
			"n", opts.NResults,
			"hybrid", opts.Hybrid,
			"rerank", opts.Rerank,
			"duration", time.Since(begin),
			"err", err,
		}
		if resp != nil {
			attrs = append(attrs, "mode", resp.Mode, "results", len(resp.Results))
			if len(resp.Degraded) > 0 {
				attrs = append(attrs, "degraded", resp.Degraded)
			}
		}
		s.logger.Info("search", attrs...)
	}(time.Now())
	return s.next.Search(ctx, query, opts)
}

// LoggingEmbedder logs embedding batches.
type LoggingEmbedder struct {
	next   ragkb.Embedder
	logger *slog.Logger
}

// NewLoggingEmbedder creates a new LoggingEmbedder.
func NewLoggingEmbedder(next ragkb.Embedder, logger *slog.Logger) *LoggingEmbedder {
	return &LoggingEmbedder{next: next, logger: logger}
}

// Embed delegates to the wrapped embedder.
func (e *LoggingEmbedder) Embed(ctx context.Context, texts []string) (vecs [][]float32, err error) {
	defer func(begin time.Time) {
		e.logger.Info("embed",
			"texts", len(texts),
			"vectors", len(vecs),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Embed(ctx, texts)
}

// EmbedSingle delegates to the wrapped embedder.
func (e *LoggingEmbedder) EmbedSingle(ctx context.Context, text string) (vec []float32, err error) {
	defer func(begin time.Time) {
		e.logger.Info("embed query",
			"chars", len(text),
			"dimension", len(vec),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.EmbedSingle(ctx, text)
}

// Dimension delegates to the wrapped embedder.
func (e *LoggingEmbedder) Dimension() int {
	return e.next.Dimension()
}
