package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
)

// Compile-time interface verification.
var _ ragkb.URLRegistry = (*URLRegistry)(nil)

// DefaultMaxRetries is the number of failures after which a URL leaves the queue.
const DefaultMaxRetries = 3

// URLRegistry implements ragkb.URLRegistry using SQLite.
type URLRegistry struct {
	db *DB

	// MaxRetries bounds retry_count for pending selection.
	MaxRetries int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewURLRegistry creates a new URLRegistry.
func NewURLRegistry(db *DB) *URLRegistry {
	return &URLRegistry{db: db, MaxRetries: DefaultMaxRetries, Now: time.Now}
}

func (r *URLRegistry) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

const urlColumns = `id, url, url_hash, source_type, status, discovered_from, refresh_frequency,
	retry_count, error_message, priority, discovered_at, last_crawled_at, next_refresh_at,
	http_etag, http_last_modified, metadata`

// Exists reports whether a url_hash is already registered.
func (r *URLRegistry) Exists(ctx context.Context, urlHash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM discovered_urls WHERE url_hash = ?", urlHash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check url: %w", err)
	}
	return n > 0, nil
}

// Insert registers a new URL. A duplicate url_hash is reported as
// inserted=false and leaves the existing row untouched.
func (r *URLRegistry) Insert(ctx context.Context, u *ragkb.DiscoveredURL) (int64, bool, error) {
	if err := u.Validate(); err != nil {
		return 0, false, err
	}
	if u.Status == "" {
		u.Status = ragkb.StatusPending
	}
	if u.RefreshFrequency == "" {
		u.RefreshFrequency = ragkb.DefaultRefreshFrequency(u.SourceType)
	}
	if u.DiscoveredAt.IsZero() {
		u.DiscoveredAt = r.now()
	}

	metadata, err := marshalJSON(u.Metadata)
	if err != nil {
		return 0, false, fmt.Errorf("failed to encode metadata: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO discovered_urls (url, url_hash, source_type, status, discovered_from, refresh_frequency,
			retry_count, priority, discovered_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO NOTHING
	`, u.URL, u.URLHash, u.SourceType, u.Status, u.DiscoveredFrom, u.RefreshFrequency,
		u.RetryCount, u.Priority, formatTime(u.DiscoveredAt), metadata)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert url: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	u.ID = id
	return id, true, nil
}

// FindURL returns the entry for a url_hash.
func (r *URLRegistry) FindURL(ctx context.Context, urlHash string) (*ragkb.DiscoveredURL, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+urlColumns+" FROM discovered_urls WHERE url_hash = ?", urlHash)
	u, err := scanURL(row)
	if err == sql.ErrNoRows {
		return nil, ragkb.Errorf(ragkb.ENOTFOUND, "url %s not found", urlHash)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Pending returns queued URLs with retries remaining.
func (r *URLRegistry) Pending(ctx context.Context, limit int) ([]*ragkb.DiscoveredURL, error) {
	var query strings.Builder
	args := []any{ragkb.StatusPending, ragkb.StatusFailed, r.MaxRetries}

	query.WriteString("SELECT " + urlColumns + ` FROM discovered_urls
		WHERE status IN (?, ?) AND retry_count < ?
		ORDER BY priority DESC, discovered_at ASC, id ASC`)
	appendPagination(&query, &args, limit, 0)

	return r.queryURLs(ctx, query.String(), args...)
}

// MarkScraped records a successful scrape: it resets the retry counter,
// clears the error and schedules the next refresh.
func (r *URLRegistry) MarkScraped(ctx context.Context, urlHash string, v ragkb.Validators) error {
	u, err := r.FindURL(ctx, urlHash)
	if err != nil {
		return err
	}

	now := r.now()
	next := now.Add(u.RefreshFrequency.Interval())

	_, err = r.db.ExecContext(ctx, `
		UPDATE discovered_urls
		SET status = ?, retry_count = 0, error_message = NULL, last_crawled_at = ?, next_refresh_at = ?,
			http_etag = ?, http_last_modified = ?
		WHERE url_hash = ?
	`, ragkb.StatusScraped, formatTime(now), formatTime(next), v.ETag, v.LastModified, urlHash)
	if err != nil {
		return fmt.Errorf("failed to mark url scraped: %w", err)
	}
	return nil
}

// MarkFailed records a failure and consumes one retry.
func (r *URLRegistry) MarkFailed(ctx context.Context, urlHash string, message string) error {
	return r.execOne(ctx, `
		UPDATE discovered_urls
		SET status = ?, retry_count = retry_count + 1, error_message = ?
		WHERE url_hash = ?
	`, ragkb.StatusFailed, message, urlHash)
}

// MarkAbandoned records a permanent failure. The retry counter is set to
// the limit so the URL is never selected again.
func (r *URLRegistry) MarkAbandoned(ctx context.Context, urlHash string, message string) error {
	return r.execOne(ctx, `
		UPDATE discovered_urls
		SET status = ?, retry_count = MAX(retry_count, ?), error_message = ?
		WHERE url_hash = ?
	`, ragkb.StatusFailed, r.MaxRetries, message, urlHash)
}

// DueForRefresh returns scraped, refreshable URLs due at or before now.
func (r *URLRegistry) DueForRefresh(ctx context.Context, now time.Time, limit int) ([]*ragkb.DiscoveredURL, error) {
	var query strings.Builder
	args := []any{ragkb.StatusScraped, ragkb.RefreshNever, formatTime(now)}

	query.WriteString("SELECT " + urlColumns + ` FROM discovered_urls
		WHERE status = ? AND refresh_frequency != ?
			AND (next_refresh_at IS NULL OR next_refresh_at <= ?)
		ORDER BY priority DESC, last_crawled_at ASC, id ASC`)
	appendPagination(&query, &args, limit, 0)

	return r.queryURLs(ctx, query.String(), args...)
}

// UpdateRefresh updates refresh bookkeeping. Nil fields are left unchanged.
func (r *URLRegistry) UpdateRefresh(ctx context.Context, urlHash string, upd ragkb.RefreshUpdate) error {
	var query strings.Builder
	args := []any{formatTime(upd.NextRefreshAt)}

	query.WriteString("UPDATE discovered_urls SET next_refresh_at = ?")
	if upd.LastCrawledAt != nil {
		query.WriteString(", last_crawled_at = ?")
		args = append(args, formatTime(*upd.LastCrawledAt))
	}
	if upd.Validators != nil {
		query.WriteString(", http_etag = ?, http_last_modified = ?")
		args = append(args, upd.Validators.ETag, upd.Validators.LastModified)
	}
	query.WriteString(" WHERE url_hash = ?")
	args = append(args, urlHash)

	return r.execOne(ctx, query.String(), args...)
}

// Stats returns counts by status and source type.
func (r *URLRegistry) Stats(ctx context.Context) (*ragkb.RegistryStats, error) {
	stats := &ragkb.RegistryStats{BySourceType: make(map[ragkb.SourceType]int)}

	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM discovered_urls GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("failed to count urls: %w", err)
	}
	for rows.Next() {
		var status ragkb.Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.Total += n
		switch status {
		case ragkb.StatusPending:
			stats.Pending = n
		case ragkb.StatusScraped:
			stats.Scraped = n
		case ragkb.StatusFailed:
			stats.Failed = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, "SELECT source_type, COUNT(*) FROM discovered_urls GROUP BY source_type")
	if err != nil {
		return nil, fmt.Errorf("failed to count urls by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st ragkb.SourceType
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		stats.BySourceType[st] = n
	}
	return stats, rows.Err()
}

// Clear deletes rows matching the filter. The zero filter deletes every
// pending or failed row.
func (r *URLRegistry) Clear(ctx context.Context, filter ragkb.ClearFilter) (int, error) {
	var result sql.Result
	var err error

	switch {
	case filter.All:
		result, err = r.db.ExecContext(ctx, "DELETE FROM discovered_urls")
	case filter.Status != nil:
		result, err = r.db.ExecContext(ctx, "DELETE FROM discovered_urls WHERE status = ?", *filter.Status)
	default:
		result, err = r.db.ExecContext(ctx, "DELETE FROM discovered_urls WHERE status IN (?, ?)",
			ragkb.StatusPending, ragkb.StatusFailed)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to clear urls: %w", err)
	}

	n, err := result.RowsAffected()
	return int(n), err
}

// execOne runs an update that must match exactly one row.
func (r *URLRegistry) execOne(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update url: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ragkb.Errorf(ragkb.ENOTFOUND, "url not found")
	}
	return nil
}

func (r *URLRegistry) queryURLs(ctx context.Context, query string, args ...any) ([]*ragkb.DiscoveredURL, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query urls: %w", err)
	}
	defer rows.Close()

	var urls []*ragkb.DiscoveredURL
	for rows.Next() {
		u, err := scanURL(rows)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanURL(s scanner) (*ragkb.DiscoveredURL, error) {
	var u ragkb.DiscoveredURL
	var errMsg, lastCrawled, nextRefresh sql.NullString
	var discoveredAt, metadata string

	if err := s.Scan(&u.ID, &u.URL, &u.URLHash, &u.SourceType, &u.Status, &u.DiscoveredFrom,
		&u.RefreshFrequency, &u.RetryCount, &errMsg, &u.Priority, &discoveredAt, &lastCrawled,
		&nextRefresh, &u.HTTPETag, &u.HTTPLastModified, &metadata); err != nil {
		return nil, err
	}

	u.ErrorMessage = errMsg.String

	var err error
	if u.DiscoveredAt, err = parseRFC3339(discoveredAt, "discovered_at"); err != nil {
		return nil, err
	}
	if u.LastCrawledAt, err = parseNullTime(lastCrawled, "last_crawled_at"); err != nil {
		return nil, err
	}
	if u.NextRefreshAt, err = parseNullTime(nextRefresh, "next_refresh_at"); err != nil {
		return nil, err
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &u.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &u, nil
}
