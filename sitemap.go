package ragkb

import (
	"context"
	"regexp"
)

// SitemapService lists the URLs a site publishes in its sitemaps.
type SitemapService interface {
	// DiscoverURLs returns the pages under baseURL that pass filter, most
	// important first as ranked by the site's declared priority and lastmod.
	// Sitemaps are located through robots.txt, then /sitemap.xml, and
	// sitemap indexes are followed. A nil filter accepts everything.
	DiscoverURLs(ctx context.Context, baseURL string, filter *URLFilter) ([]string, error)
}

// URLFilter narrows which discovered pages become sources.
type URLFilter struct {
	// Include, when non-empty, requires a match against at least one pattern.
	Include []*regexp.Regexp

	// Exclude rejects any URL matching a pattern. It is applied after Include.
	Exclude []*regexp.Regexp
}

// NewURLFilter compiles include and exclude patterns. It returns nil when
// both are empty.
func NewURLFilter(include, exclude []string) (*URLFilter, error) {
	if len(include) == 0 && len(exclude) == 0 {
		return nil, nil
	}
	f := &URLFilter{}
	for _, list := range []struct {
		patterns []string
		into     *[]*regexp.Regexp
	}{{include, &f.Include}, {exclude, &f.Exclude}} {
		for _, p := range list.patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, Errorf(EINVALID, "invalid URL pattern %q: %v", p, err)
			}
			*list.into = append(*list.into, re)
		}
	}
	return f, nil
}

// Match reports whether the URL passes the filter. A nil filter passes everything.
func (f *URLFilter) Match(url string) bool {
	if f == nil {
		return true
	}
	if len(f.Include) > 0 && !matchAny(f.Include, url) {
		return false
	}
	return !matchAny(f.Exclude, url)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
