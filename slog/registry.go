package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.URLRegistry = (*LoggingURLRegistry)(nil)

// LoggingURLRegistry logs registry lifecycle transitions. Lookups and
// listings are logged at debug level.
type LoggingURLRegistry struct {
	next   ragkb.URLRegistry
	logger *slog.Logger
}

// NewLoggingURLRegistry creates a new LoggingURLRegistry.
func NewLoggingURLRegistry(next ragkb.URLRegistry, logger *slog.Logger) *LoggingURLRegistry {
	return &LoggingURLRegistry{next: next, logger: logger}
}

func (r *LoggingURLRegistry) log(level slog.Level, op string, begin time.Time, err error, attrs ...any) {
	attrs = append(attrs, "duration", time.Since(begin), "err", err)
	r.logger.Log(context.Background(), level, "registry "+op, attrs...)
}

// Exists delegates to the wrapped registry.
func (r *LoggingURLRegistry) Exists(ctx context.Context, urlHash string) (ok bool, err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelDebug, "exists", begin, err, "hash", urlHash, "exists", ok)
	}(time.Now())
	return r.next.Exists(ctx, urlHash)
}

// Insert delegates to the wrapped registry.
func (r *LoggingURLRegistry) Insert(ctx context.Context, u *ragkb.DiscoveredURL) (id int64, inserted bool, err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelInfo, "insert", begin, err,
			"url", u.URL,
			"type", u.SourceType,
			"from", u.DiscoveredFrom,
			"inserted", inserted,
		)
	}(time.Now())
	return r.next.Insert(ctx, u)
}

// FindURL delegates to the wrapped registry.
func (r *LoggingURLRegistry) FindURL(ctx context.Context, urlHash string) (u *ragkb.DiscoveredURL, err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelDebug, "find", begin, err, "hash", urlHash)
	}(time.Now())
	return r.next.FindURL(ctx, urlHash)
}

// Pending delegates to the wrapped registry.
func (r *LoggingURLRegistry) Pending(ctx context.Context, limit int) (urls []*ragkb.DiscoveredURL, err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelDebug, "pending", begin, err, "limit", limit, "count", len(urls))
	}(time.Now())
	return r.next.Pending(ctx, limit)
}

// MarkScraped delegates to the wrapped registry.
func (r *LoggingURLRegistry) MarkScraped(ctx context.Context, urlHash string, v ragkb.Validators) (err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelInfo, "mark scraped", begin, err, "hash", urlHash, "etag", v.ETag, "last_modified", v.LastModified)
	}(time.Now())
	return r.next.MarkScraped(ctx, urlHash, v)
}

// MarkFailed delegates to the wrapped registry.
func (r *LoggingURLRegistry) MarkFailed(ctx context.Context, urlHash string, message string) (err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelInfo, "mark failed", begin, err, "hash", urlHash, "reason", message)
	}(time.Now())
	return r.next.MarkFailed(ctx, urlHash, message)
}

// MarkAbandoned delegates to the wrapped registry.
func (r *LoggingURLRegistry) MarkAbandoned(ctx context.Context, urlHash string, message string) (err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelInfo, "mark abandoned", begin, err, "hash", urlHash, "reason", message)
	}(time.Now())
	return r.next.MarkAbandoned(ctx, urlHash, message)
}

// DueForRefresh delegates to the wrapped registry.
func (r *LoggingURLRegistry) DueForRefresh(ctx context.Context, now time.Time, limit int) (urls []*ragkb.DiscoveredURL, err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelDebug, "due for refresh", begin, err, "limit", limit, "count", len(urls))
	}(time.Now())
	return r.next.DueForRefresh(ctx, now, limit)
}

// UpdateRefresh delegates to the wrapped registry.
func (r *LoggingURLRegistry) UpdateRefresh(ctx context.Context, urlHash string, upd ragkb.RefreshUpdate) (err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelInfo, "update refresh", begin, err,
			"hash", urlHash,
			"next", upd.NextRefreshAt,
			"crawled", upd.LastCrawledAt != nil,
		)
	}(time.Now())
	return r.next.UpdateRefresh(ctx, urlHash, upd)
}

// Stats delegates to the wrapped registry.
func (r *LoggingURLRegistry) Stats(ctx context.Context) (s *ragkb.RegistryStats, err error) {
	defer func(begin time.Time) {
		r.log(slog.LevelDebug, "stats", begin, err)
	}(time.Now())
	return r.next.Stats(ctx)
}

// Clear delegates to the wrapped registry.
func (r *LoggingURLRegistry) Clear(ctx context.Context, filter ragkb.ClearFilter) (n int, err error) {
	defer func(begin time.Time) {
		status := "queued"
		switch {
		case filter.All:
			status = "all"
		case filter.Status != nil:
			status = string(*filter.Status)
		}
		r.log(slog.LevelInfo, "clear", begin, err, "status", status, "deleted", n)
	}(time.Now())
	return r.next.Clear(ctx, filter)
}
