package discover

import (
	"regexp"
	"slices"
	"strings"

	"github.com/fwojciec/ragkb"
)

// blocklist drops low-value aggregators, course marketplaces and
// non-technical pages.
var blocklist = compileAll(
	`best.*courses`, `top.*courses`, `best.*tutorial`,
	`.*content.*on.*youtube`, `best.*youtube.*channel`,
	`learn.*online`, `tutorial.*list`,

	`udemy\.com`, `coursera\.org`, `skillshare\.com`,
	`educative\.io`, `pluralsight\.com`,

	`nbshare\.io`, `coursetakers\.com`,

	`how.*to.*choose`, `comparison`, `vs\.`,
	`best.*practices.*for.*beginners`,

	`/news/`, `press-release`, `announcement`,

	`beginners.*guide.*to.*(?:vue|react).*lifecycle`,
	`introduction.*for.*dummies`,
	`getting.*started.*for.*complete.*beginners`,

	`pinterest\.com`, `instagram\.com`, `facebook\.com`,
)

type weightedPattern struct {
	re     *regexp.Regexp
	weight int
}

// priorityPatterns score a URL by summing the weights of every match.
var priorityPatterns = []weightedPattern{
	{regexp.MustCompile(`(?i)youtube\.com/@`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/c/`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/channel/`), 5},
	{regexp.MustCompile(`(?i)youtube\.com/user/`), 5},

	{regexp.MustCompile(`(?i)youtube\.com/playlist`), 4},

	{regexp.MustCompile(`(?i)youtube\.com/watch`), 3},
	{regexp.MustCompile(`(?i)readthedocs\.io`), 3},
	{regexp.MustCompile(`(?i)docs\..*\.(?:com|org|io)`), 3},

	{regexp.MustCompile(`(?i)stackoverflow\.com/questions`), 2},

	{regexp.MustCompile(`(?i)tutorial`), 1},
	{regexp.MustCompile(`(?i)guide`), 1},
	{regexp.MustCompile(`(?i)example`), 1},
}

var (
	githubRepo  = regexp.MustCompile(`(?i)github\.com/`)
	githubTopic = regexp.MustCompile(`(?i)github\.com/topics`)
)

// githubWeight scores repository pages but not topic listings.
const githubWeight = 3

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Blocked reports whether url matches the blocklist.
func Blocked(url string) bool {
	for _, re := range blocklist {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// Score returns the priority score of url. Higher scores are more likely to
// lead to substantial technical content.
func Score(url string) int {
	score := 0
	for _, p := range priorityPatterns {
		if p.re.MatchString(url) {
			score += p.weight
		}
	}
	if githubRepo.MatchString(url) && !githubTopic.MatchString(url) {
		score += githubWeight
	}
	return score
}

// ExtractURLs returns the unique, non-blocked URLs of results ordered by
// score, highest first. Ties keep their search order.
func ExtractURLs(results []ragkb.WebResult) []string {
	type scored struct {
		url   string
		score int
	}

	seen := make(map[string]bool, len(results))
	var urls []scored
	for _, r := range results {
		u := strings.TrimSpace(r.URL)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		if Blocked(u) {
			continue
		}
		urls = append(urls, scored{url: u, score: Score(u)})
	}

	slices.SortStableFunc(urls, func(a, b scored) int { return b.score - a.score })

	out := make([]string, len(urls))
	for i, s := range urls {
		out[i] = s.url
	}
	return out
}

// ResultsPerQuery returns how many results to request per query so the total
// yield stays around 40 to 60 URLs.
func ResultsPerQuery(queries int) int {
	switch {
	case queries <= 10:
		return 5
	case queries <= 15:
		return 4
	default:
		return 3
	}
}
