// Package youtube scrapes YouTube videos and lists channel uploads. Video
// metadata and channel uploads come from the YouTube Data API v3 when an API
// key is configured; transcripts come from the watch page caption tracks and
// channels without a key are read from their RSS feed.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fwojciec/ragkb"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// DefaultBaseURL is the site root used for watch pages, channel pages and
// feeds.
const DefaultBaseURL = "https://www.youtube.com"

// DefaultLanguages is the transcript language preference order.
var DefaultLanguages = []string{"fr", "en", "es", "de", "it"}

// NewService creates a Data API client. An empty key returns nil, which
// scrapers treat as "no API access".
func NewService(ctx context.Context, apiKey string, opts ...option.ClientOption) (*youtube.Service, error) {
	if apiKey == "" {
		return nil, nil
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(videoID string) string {
	return DefaultBaseURL + "/watch?v=" + videoID
}

// classifyAPIError wraps a Data API error in a ScrapeError. Quota and rate
// limits and server errors are temporary; missing resources and bad
// requests are permanent.
func classifyAPIError(ctx context.Context, url, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return ragkb.NewScrapeError(url, wrapped)
	}
	switch {
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
		return &ragkb.ScrapeError{URL: url, Temporary: true, Err: wrapped}
	case gerr.Code == http.StatusForbidden:
		return &ragkb.ScrapeError{URL: url, Temporary: isQuotaError(gerr), Err: wrapped}
	default:
		return &ragkb.ScrapeError{URL: url, Err: wrapped}
	}
}

func isQuotaError(gerr *googleapi.Error) bool {
	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	msg := strings.ToLower(gerr.Message)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit")
}
