package ragkb

import (
	"net/url"
	"strings"
	"time"
)

// SourceType identifies the kind of content behind a URL.
type SourceType string

// Supported source types.
const (
	SourceWebsite        SourceType = "website"
	SourceGitHub         SourceType = "github"
	SourceYouTubeVideo   SourceType = "youtube_video"
	SourceYouTubeChannel SourceType = "youtube_channel"
)

// SourceTypes lists every supported source type.
var SourceTypes = []SourceType{SourceWebsite, SourceGitHub, SourceYouTubeVideo, SourceYouTubeChannel}

// ParseSourceType converts a string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	for _, t := range SourceTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", Errorf(EINVALID, "unknown source type %q", s)
}

// IsYouTube reports whether the source type is served by YouTube.
// YouTube sources are rate-sensitive and get throttled more aggressively.
func (t SourceType) IsYouTube() bool {
	return t == SourceYouTubeVideo || t == SourceYouTubeChannel
}

// Status is the lifecycle state of a discovered URL.
type Status string

// URL statuses.
const (
	StatusPending Status = "pending"
	StatusScraped Status = "scraped"
	StatusFailed  Status = "failed"
)

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusScraped, StatusFailed:
		return Status(s), nil
	}
	return "", Errorf(EINVALID, "unknown status %q", s)
}

// RefreshFrequency controls how often a scraped URL is re-checked.
type RefreshFrequency string

// Refresh frequencies.
const (
	RefreshNever   RefreshFrequency = "never"
	RefreshWeekly  RefreshFrequency = "weekly"
	RefreshMonthly RefreshFrequency = "monthly"
)

// neverInterval pushes next_refresh_at far enough out to be effectively infinite.
const neverInterval = 10 * 365 * 24 * time.Hour

// Interval returns the time between refreshes.
func (f RefreshFrequency) Interval() time.Duration {
	switch f {
	case RefreshWeekly:
		return 7 * 24 * time.Hour
	case RefreshMonthly:
		return 30 * 24 * time.Hour
	default:
		return neverInterval
	}
}

// ParseRefreshFrequency converts a string into a RefreshFrequency.
func ParseRefreshFrequency(s string) (RefreshFrequency, error) {
	switch RefreshFrequency(s) {
	case RefreshNever, RefreshWeekly, RefreshMonthly:
		return RefreshFrequency(s), nil
	}
	return "", Errorf(EINVALID, "unknown refresh frequency %q", s)
}

// DefaultRefreshFrequency returns the refresh frequency assigned to newly
// discovered URLs of the given type. Individual videos never change once
// published, so they are never refreshed.
func DefaultRefreshFrequency(t SourceType) RefreshFrequency {
	if t == SourceYouTubeVideo {
		return RefreshNever
	}
	return RefreshWeekly
}

// DetectSourceType classifies a URL by host and path.
func DetectSourceType(rawURL string) SourceType {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return SourceWebsite
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	switch {
	case host == "github.com":
		return SourceGitHub
	case isYouTubeHost(host):
		path := u.Path
		for _, marker := range []string{"/channel/", "/c/", "/@", "/user/"} {
			if strings.Contains(path, marker) {
				return SourceYouTubeChannel
			}
		}
		return SourceYouTubeVideo
	}
	return SourceWebsite
}

func isYouTubeHost(host string) bool {
	host = strings.TrimPrefix(host, "www.")
	return host == "youtube.com" || host == "m.youtube.com" || host == "youtu.be"
}
