// Package slog provides logging decorators for the ragkb service interfaces.
// The CLI wraps services with them when verbose output is requested.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/ragkb"
)

var (
	_ ragkb.Fetcher        = (*LoggingFetcher)(nil)
	_ ragkb.SitemapService = (*LoggingSitemapService)(nil)
)

// LoggingFetcher logs every page fetch with its size and duration.
type LoggingFetcher struct {
	next   ragkb.Fetcher
	logger *slog.Logger
}

// NewLoggingFetcher creates a new LoggingFetcher.
func NewLoggingFetcher(next ragkb.Fetcher, logger *slog.Logger) *LoggingFetcher {
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch delegates to the wrapped fetcher.
func (f *LoggingFetcher) Fetch(ctx context.Context, url string) (html string, err error) {
	defer func(begin time.Time) {
		f.logger.Info("page fetch",
			"url", url,
			"bytes", len(html),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return f.next.Fetch(ctx, url)
}

// Close delegates to the wrapped fetcher.
func (f *LoggingFetcher) Close() error {
	return f.next.Close()
}

// LoggingSitemapService logs sitemap discovery for website crawl expansion.
type LoggingSitemapService struct {
	next   ragkb.SitemapService
	logger *slog.Logger
}

// NewLoggingSitemapService creates a new LoggingSitemapService.
func NewLoggingSitemapService(next ragkb.SitemapService, logger *slog.Logger) *LoggingSitemapService {
	return &LoggingSitemapService{next: next, logger: logger}
}

// DiscoverURLs delegates to the wrapped service.
func (s *LoggingSitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *ragkb.URLFilter) (urls []string, err error) {
	defer func(begin time.Time) {
		s.logger.Info("sitemap discovery",
			"site", baseURL,
			"urls", len(urls),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return s.next.DiscoverURLs(ctx, baseURL, filter)
}
