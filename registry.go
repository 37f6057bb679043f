package ragkb

import (
	"context"
	"time"
)

// DiscoveredURL is a registry entry: one source URL and its crawl lifecycle.
type DiscoveredURL struct {
	ID               int64             `json:"id"`
	URL              string            `json:"url"`
	URLHash          string            `json:"urlHash"`
	SourceType       SourceType        `json:"sourceType"`
	Status           Status            `json:"status"`
	DiscoveredFrom   string            `json:"discoveredFrom"`
	RefreshFrequency RefreshFrequency  `json:"refreshFrequency"`
	RetryCount       int               `json:"retryCount"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	Priority         int               `json:"priority"`
	DiscoveredAt     time.Time         `json:"discoveredAt"`
	LastCrawledAt    *time.Time        `json:"lastCrawledAt,omitempty"`
	NextRefreshAt    *time.Time        `json:"nextRefreshAt,omitempty"`
	HTTPETag         string            `json:"httpEtag,omitempty"`
	HTTPLastModified string            `json:"httpLastModified,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Validate returns an error if the URL entry contains invalid fields.
func (u *DiscoveredURL) Validate() error {
	if u.URL == "" {
		return Errorf(EINVALID, "url required")
	}
	if u.URLHash == "" {
		return Errorf(EINVALID, "url hash required")
	}
	if _, err := ParseSourceType(string(u.SourceType)); err != nil {
		return err
	}
	return nil
}

// Provenance values recorded in DiscoveredFrom.
const (
	FromUserInput    = "user_input"
	FromWebSearch    = "web_search"
	FromChannel      = "channel:"
	FromWebsiteCrawl = "website_crawl:"
)

// Validators are the HTTP cache validators observed for a URL.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}

// IsZero reports whether no validator was observed.
func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

// RefreshUpdate describes a change to a URL's refresh bookkeeping.
type RefreshUpdate struct {
	NextRefreshAt time.Time
	LastCrawledAt *time.Time
	Validators    *Validators
}

// RegistryStats summarizes the registry.
type RegistryStats struct {
	Total        int                `json:"total"`
	Pending      int                `json:"pending"`
	Scraped      int                `json:"scraped"`
	Failed       int                `json:"failed"`
	BySourceType map[SourceType]int `json:"bySourceType"`
}

// ClearFilter selects which registry rows Clear deletes.
// A nil Status deletes every queued (pending or failed) row.
type ClearFilter struct {
	Status *Status
	All    bool
}

// URLRegistry is the durable set of discovered URLs and their lifecycle state.
type URLRegistry interface {
	// Exists reports whether a url_hash is already registered.
	Exists(ctx context.Context, urlHash string) (bool, error)

	// Insert registers a new URL. Duplicate hashes leave the existing row
	// untouched and report inserted=false without an error.
	Insert(ctx context.Context, u *DiscoveredURL) (id int64, inserted bool, err error)

	// FindURL returns the entry for a url_hash.
	// Returns ENOTFOUND if no entry exists.
	FindURL(ctx context.Context, urlHash string) (*DiscoveredURL, error)

	// Pending returns up to limit URLs that are pending or failed with
	// retries remaining, highest priority first, oldest first within a priority.
	Pending(ctx context.Context, limit int) ([]*DiscoveredURL, error)

	// MarkScraped records a successful scrape and schedules the next refresh.
	MarkScraped(ctx context.Context, urlHash string, v Validators) error

	// MarkFailed records a failure and consumes one retry.
	MarkFailed(ctx context.Context, urlHash string, message string) error

	// MarkAbandoned records a permanent failure; the URL is never retried.
	MarkAbandoned(ctx context.Context, urlHash string, message string) error

	// DueForRefresh returns scraped, refreshable URLs whose next refresh is
	// unset or at or before now.
	DueForRefresh(ctx context.Context, now time.Time, limit int) ([]*DiscoveredURL, error)

	// UpdateRefresh updates refresh bookkeeping for a URL.
	UpdateRefresh(ctx context.Context, urlHash string, upd RefreshUpdate) error

	// Stats returns counts by status and source type.
	Stats(ctx context.Context) (*RegistryStats, error)

	// Clear deletes rows matching the filter and returns how many were removed.
	Clear(ctx context.Context, filter ClearFilter) (int, error)
}
