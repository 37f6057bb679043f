// Package crawl discovers the pages of a website. It prefers the site's
// sitemaps and falls back to a breadth-first, rate-limited link walk scoped
// to the host and path of the starting URL.
package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/ragkb"
)

// Compile-time interface verification.
var _ ragkb.PageDiscoverer = (*Discoverer)(nil)

const (
	// DefaultMaxPages limits discovery on large sites.
	DefaultMaxPages = 1000

	// DefaultMaxDepth bounds how many links a walk follows from the start page.
	DefaultMaxDepth = 5

	defaultConcurrency = 3

	// The frontier admits this many links per page wanted; links past the
	// cap would never be fetched anyway.
	frontierLinksPerPage = 10
	frontierFPRate       = 0.01
)

// Discoverer lists the pages of a website.
type Discoverer struct {
	Sitemaps    ragkb.SitemapService
	HTTPFetcher ragkb.Fetcher

	// BrowserFetcher, when set, is used for the walk if rendering the start
	// page with it yields BrowserGain times the words of plain HTTP.
	BrowserFetcher ragkb.Fetcher
	Extractor      ragkb.Extractor
	BrowserGain    float64

	// Filter screens sitemap and walked pages. Nil keeps everything.
	Filter *ragkb.URLFilter

	Links       ragkb.LinkExtractor
	RateLimiter ragkb.DomainLimiter
	Concurrency int

	// MaxDepth bounds link hops from the start page. Zero means
	// DefaultMaxDepth; negative means unbounded.
	MaxDepth int

	RetryDelays []time.Duration
	Logger      *slog.Logger
}

// DiscoverPages returns up to max page URLs of the site rooted at siteURL.
// Sitemap URLs are used when the site publishes any; otherwise links are
// followed from siteURL. The root page itself is always the first result
// of a walk.
func (d *Discoverer) DiscoverPages(ctx context.Context, siteURL string, max int) ([]string, error) {
	if max <= 0 {
		max = DefaultMaxPages
	}
	root, err := url.Parse(siteURL)
	if err != nil || root.Host == "" {
		return nil, ragkb.Errorf(ragkb.EINVALID, "invalid site URL %q", siteURL)
	}

	if d.Sitemaps != nil {
		urls, err := d.Sitemaps.DiscoverURLs(ctx, siteURL, d.Filter)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			d.logger().Warn("sitemap discovery failed, walking links", "url", siteURL, "err", err)
		case len(urls) > 0:
			if len(urls) > max {
				urls = urls[:max]
			}
			d.logger().Debug("pages discovered from sitemap", "url", siteURL, "count", len(urls))
			return urls, nil
		}
	}

	urls, err := d.walk(ctx, root, d.chooseFetcher(ctx, siteURL), max)
	if err != nil {
		return nil, err
	}
	d.logger().Debug("pages discovered by link walk", "url", siteURL, "count", len(urls))
	return urls, nil
}

// chooseFetcher probes the start page with both fetchers and keeps plain
// HTTP unless the browser renders substantially more content.
func (d *Discoverer) chooseFetcher(ctx context.Context, probeURL string) ragkb.Fetcher {
	if d.BrowserFetcher == nil || d.Extractor == nil {
		return d.HTTPFetcher
	}
	httpHTML, err := d.HTTPFetcher.Fetch(ctx, probeURL)
	if err != nil {
		return d.BrowserFetcher
	}
	browserHTML, err := d.BrowserFetcher.Fetch(ctx, probeURL)
	if err != nil {
		return d.HTTPFetcher
	}
	gain := d.BrowserGain
	if gain <= 0 {
		gain = DefaultBrowserGain
	}
	if NeedsBrowser(httpHTML, browserHTML, d.Extractor, gain) {
		return d.BrowserFetcher
	}
	return d.HTTPFetcher
}

// pageResult is the outcome of fetching one page during a walk.
type pageResult struct {
	link       ragkb.DiscoveredLink
	discovered []ragkb.DiscoveredLink
	err        error
}

// walk follows in-scope links breadth-first with a pool of workers. The
// coordinator owns the frontier; workers only fetch and extract links.
func (d *Discoverer) walk(ctx context.Context, root *url.URL, fetcher ragkb.Fetcher, max int) ([]string, error) {
	pathPrefix := strings.TrimSuffix(root.Path, "/")

	frontier := NewFrontier(uint(max*frontierLinksPerPage), frontierFPRate)
	frontier.Cap = max * frontierLinksPerPage
	frontier.Push(ragkb.DiscoveredLink{URL: root.String(), Priority: ragkb.PriorityNavigation})

	maxDepth := d.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	workCh := make(chan ragkb.DiscoveredLink, concurrency)
	resultCh := make(chan pageResult)

	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range workCh {
				res := d.visit(ctx, fetcher, link)
				select {
				case resultCh <- res:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var urls []string
	handle := func(res pageResult) {
		if res.err != nil {
			d.logger().Debug("page fetch failed during walk", "url", res.link.URL, "err", res.err)
			return
		}
		if len(urls) < max && d.Filter.Match(res.link.URL) {
			urls = append(urls, res.link.URL)
		}
		depth := res.link.Depth + 1
		if maxDepth > 0 && depth > maxDepth {
			return
		}
		for _, link := range res.discovered {
			if inScope(link.URL, root.Host, pathPrefix) {
				link.Depth = depth
				frontier.Push(link)
			}
		}
	}

	dispatched, pending := 0, 0
	var next *ragkb.DiscoveredLink
	if link, ok := frontier.Pop(); ok {
		next = &link
	}

loop:
	for next != nil || pending > 0 {
		if ctx.Err() != nil {
			break
		}
		if next != nil && dispatched < max {
			select {
			case <-ctx.Done():
				break loop
			case workCh <- *next:
				dispatched++
				pending++
				next = nil
			case res := <-resultCh:
				pending--
				handle(res)
			}
		} else {
			select {
			case <-ctx.Done():
				break loop
			case res := <-resultCh:
				pending--
				handle(res)
			}
		}
		if next == nil && dispatched < max {
			if link, ok := frontier.Pop(); ok {
				next = &link
			}
		}
	}
	close(workCh)

	for res := range resultCh {
		handle(res)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := frontier.Dropped(); n > 0 {
		d.logger().Debug("frontier full, links dropped", "url", root.String(), "dropped", n)
	}
	return urls, nil
}

func (d *Discoverer) visit(ctx context.Context, fetcher ragkb.Fetcher, link ragkb.DiscoveredLink) pageResult {
	res := pageResult{link: link}

	if d.RateLimiter != nil {
		if err := d.RateLimiter.Wait(ctx, ragkb.Domain(link.URL)); err != nil {
			res.err = err
			return res
		}
	}

	delays := d.RetryDelays
	if delays == nil {
		delays = DefaultRetryDelays()
	}
	html, err := FetchWithRetryDelays(ctx, link.URL, fetcher.Fetch, d.Logger, delays)
	if err != nil {
		res.err = err
		return res
	}

	if links, err := d.Links.ExtractLinks(html, link.URL); err == nil {
		res.discovered = links
	}
	return res
}

// inScope reports whether rawURL is on host and under pathPrefix on a
// segment boundary.
func inScope(rawURL, host, pathPrefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Host, host) {
		return false
	}
	if pathPrefix == "" {
		return true
	}
	p := strings.TrimSuffix(u.Path, "/")
	return p == pathPrefix || strings.HasPrefix(p, pathPrefix+"/")
}

func (d *Discoverer) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}
