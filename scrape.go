package ragkb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TranscriptSegment is one timed caption line. Start and Duration are seconds.
type TranscriptSegment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// SourceFile is one file pulled from a repository.
type SourceFile struct {
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// VideoInfo is metadata scraped from a YouTube video.
type VideoInfo struct {
	VideoID       string              `json:"videoId"`
	Channel       string              `json:"channel"`
	ChannelID     string              `json:"channelId"`
	Duration      string              `json:"duration"`
	ViewCount     uint64              `json:"viewCount"`
	LikeCount     uint64              `json:"likeCount"`
	CommentCount  uint64              `json:"commentCount"`
	Tags          []string            `json:"tags,omitempty"`
	HasTranscript bool                `json:"hasTranscript"`
	Segments      []TranscriptSegment `json:"segments,omitempty"`
}

// RepoInfo is metadata scraped from a GitHub repository.
type RepoInfo struct {
	Name       string       `json:"name"`
	Stars      int          `json:"stars"`
	Language   string       `json:"language"`
	CommitHash string       `json:"commitHash"`
	Files      []SourceFile `json:"files,omitempty"`
}

// ScrapeResult is the content and metadata fetched from one source URL.
type ScrapeResult struct {
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Domain      string     `json:"domain"`
	Language    string     `json:"language"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`

	Video *VideoInfo `json:"video,omitempty"`
	Repo  *RepoInfo  `json:"repo,omitempty"`

	Validators Validators        `json:"validators"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// ContentHash returns the hash used to detect content changes.
func (r *ScrapeResult) ContentHash() string {
	return HashContent(r.Content)
}

// CommitHash returns the repository commit, if any.
func (r *ScrapeResult) CommitHash() string {
	if r.Repo == nil {
		return ""
	}
	return r.Repo.CommitHash
}

// Scraper fetches and normalizes the content behind a URL.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*ScrapeResult, error)
}

// ChannelCrawler lists the videos published on a YouTube channel.
type ChannelCrawler interface {
	DiscoverVideos(ctx context.Context, channelURL string, max int) ([]string, error)
}

// PageDiscoverer lists the pages of a website within the scope of a root URL.
type PageDiscoverer interface {
	DiscoverPages(ctx context.Context, siteURL string, max int) ([]string, error)
}

// HeadChecker performs a lightweight request that returns cache validators.
type HeadChecker interface {
	Head(ctx context.Context, url string) (Validators, error)
}

// CommitChecker returns the current commit of a repository URL.
type CommitChecker interface {
	CommitHash(ctx context.Context, repoURL string) (string, error)
}

// Scrapers is the closed set of scrapers keyed by source type.
type Scrapers struct {
	Website        Scraper
	GitHub         Scraper
	YouTubeVideo   Scraper
	YouTubeChannel Scraper
}

// For returns the scraper for a source type.
// Returns EUNAVAILABLE if no scraper is configured for the type.
func (s Scrapers) For(t SourceType) (Scraper, error) {
	var scraper Scraper
	switch t {
	case SourceWebsite:
		scraper = s.Website
	case SourceGitHub:
		scraper = s.GitHub
	case SourceYouTubeVideo:
		scraper = s.YouTubeVideo
	case SourceYouTubeChannel:
		scraper = s.YouTubeChannel
	default:
		return nil, Errorf(EINVALID, "unknown source type %q", t)
	}
	if scraper == nil {
		return nil, Errorf(EUNAVAILABLE, "no scraper configured for %s", t)
	}
	return scraper, nil
}

// ScrapeError is a scrape failure classified as temporary or permanent.
type ScrapeError struct {
	URL       string
	Temporary bool
	Err       error
}

// Error implements the error interface.
func (e *ScrapeError) Error() string {
	kind := "permanent"
	if e.Temporary {
		kind = "temporary"
	}
	return fmt.Sprintf("scrape %s (%s): %v", e.URL, kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ScrapeError) Unwrap() error { return e.Err }

// NewScrapeError wraps err, classifying it from its message.
func NewScrapeError(url string, err error) *ScrapeError {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se
	}
	return &ScrapeError{URL: url, Temporary: ClassifyErrorMessage(err.Error()), Err: err}
}

// IsTemporary reports whether err is worth retrying. Context cancellation
// is never temporary; unclassified errors are.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Temporary
	}
	return ClassifyErrorMessage(err.Error())
}

var (
	permanentIndicators = []string{
		"video unavailable", "private video", "deleted", "removed", "404",
		"no transcript", "transcripts disabled", "transcriptsdisabled",
		"invalid", "not found", "copyright",
	}
	temporaryIndicators = []string{
		"rate limit", "quota", "too many requests", "blocked", "ip",
		"timeout", "timed out", "connection", "network",
		"429", "503", "502", "504", "server error",
		"temporarily unavailable", "try again later",
	}
)

// ClassifyErrorMessage reports whether an error message describes a
// temporary condition. Permanent indicators take precedence and unknown
// messages default to temporary.
func ClassifyErrorMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, ind := range permanentIndicators {
		if strings.Contains(lower, ind) {
			return false
		}
	}
	for _, ind := range temporaryIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return true
}
