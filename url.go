package ragkb

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var urlPattern = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

// NormalizeURL canonicalizes a URL so equivalent spellings hash identically.
// Fragments and trailing slashes are dropped, the scheme and host are
// lowercased, YouTube watch URLs keep only the video parameter, other
// YouTube URLs lose their query, and remaining queries are sorted by key.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", Errorf(EINVALID, "invalid url %q: %v", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", Errorf(EINVALID, "invalid url %q: scheme and host required", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if isYouTubeHost(u.Hostname()) {
		if strings.Contains(u.Path, "/watch") {
			if v := u.Query().Get("v"); v != "" {
				u.RawQuery = url.Values{"v": {v}}.Encode()
			}
		} else {
			u.RawQuery = ""
		}
	} else if u.RawQuery != "" {
		// Values.Encode sorts by key.
		u.RawQuery = u.Query().Encode()
	}
	u.ForceQuery = false

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""

	return u.String(), nil
}

// HashURL returns the stable identity of a URL: the hex xxhash of its
// normalized form. Unparseable input is hashed as given.
func HashURL(raw string) string {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		normalized = strings.TrimSpace(raw)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// HashContent returns the hex xxhash of content, used for change detection.
func HashContent(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(content))
}

// ExtractURLs finds http(s) URLs embedded in free text, in order of appearance.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)'")
		if m != "" {
			urls = append(urls, m)
		}
	}
	return urls
}

// IsValidURL reports whether raw is an absolute http or https URL.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Domain returns the host of a URL without a leading "www.".
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// YouTubeVideoID extracts the video ID from youtu.be, watch and shorts URLs.
func YouTubeVideoID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")

	if host == "youtu.be" {
		id := strings.Trim(u.Path, "/")
		return id, id != ""
	}
	if !isYouTubeHost(host) {
		return "", false
	}
	if v := u.Query().Get("v"); v != "" {
		return v, true
	}
	if rest, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
		id := strings.Split(rest, "/")[0]
		return id, id != ""
	}
	return "", false
}

// GitHubRepo extracts owner and repository name from a github.com URL.
func GitHubRepo(raw string) (owner, repo string, err error) {
	u, parseErr := url.Parse(raw)
	if parseErr != nil {
		return "", "", Errorf(EINVALID, "invalid github url %q", raw)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", Errorf(EINVALID, "github url %q must name owner/repo", raw)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// SortedKeys returns the keys of a map in ascending order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
