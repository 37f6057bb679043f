package mock

import (
	"context"

	"github.com/fwojciec/ragkb"
)

var (
	_ ragkb.Scraper        = (*Scraper)(nil)
	_ ragkb.ChannelCrawler = (*ChannelCrawler)(nil)
	_ ragkb.PageDiscoverer = (*PageDiscoverer)(nil)
	_ ragkb.HeadChecker    = (*HeadChecker)(nil)
	_ ragkb.CommitChecker  = (*CommitChecker)(nil)
	_ ragkb.WebSearcher    = (*WebSearcher)(nil)
	_ ragkb.SearchService  = (*SearchService)(nil)
	_ ragkb.Ingester       = (*Ingester)(nil)
)

// Scraper is a mock implementation of ragkb.Scraper.
type Scraper struct {
	ScrapeFn func(ctx context.Context, url string) (*ragkb.ScrapeResult, error)
}

func (s *Scraper) Scrape(ctx context.Context, url string) (*ragkb.ScrapeResult, error) {
	return s.ScrapeFn(ctx, url)
}

// ChannelCrawler is a mock implementation of ragkb.ChannelCrawler.
type ChannelCrawler struct {
	DiscoverVideosFn func(ctx context.Context, channelURL string, max int) ([]string, error)
}

func (c *ChannelCrawler) DiscoverVideos(ctx context.Context, channelURL string, max int) ([]string, error) {
	return c.DiscoverVideosFn(ctx, channelURL, max)
}

// PageDiscoverer is a mock implementation of ragkb.PageDiscoverer.
type PageDiscoverer struct {
	DiscoverPagesFn func(ctx context.Context, siteURL string, max int) ([]string, error)
}

func (p *PageDiscoverer) DiscoverPages(ctx context.Context, siteURL string, max int) ([]string, error) {
	return p.DiscoverPagesFn(ctx, siteURL, max)
}

// HeadChecker is a mock implementation of ragkb.HeadChecker.
type HeadChecker struct {
	HeadFn func(ctx context.Context, url string) (ragkb.Validators, error)
}

func (h *HeadChecker) Head(ctx context.Context, url string) (ragkb.Validators, error) {
	return h.HeadFn(ctx, url)
}

// CommitChecker is a mock implementation of ragkb.CommitChecker.
type CommitChecker struct {
	CommitHashFn func(ctx context.Context, repoURL string) (string, error)
}

func (c *CommitChecker) CommitHash(ctx context.Context, repoURL string) (string, error) {
	return c.CommitHashFn(ctx, repoURL)
}

// WebSearcher is a mock implementation of ragkb.WebSearcher.
type WebSearcher struct {
	SearchFn func(ctx context.Context, query string, count int) ([]ragkb.WebResult, error)
}

func (w *WebSearcher) Search(ctx context.Context, query string, count int) ([]ragkb.WebResult, error) {
	return w.SearchFn(ctx, query, count)
}

// SearchService is a mock implementation of ragkb.SearchService.
type SearchService struct {
	SearchFn func(ctx context.Context, query string, opts ragkb.SearchOptions) (*ragkb.SearchResponse, error)
}

func (s *SearchService) Search(ctx context.Context, query string, opts ragkb.SearchOptions) (*ragkb.SearchResponse, error) {
	return s.SearchFn(ctx, query, opts)
}

// Ingester is a mock implementation of ragkb.Ingester.
type Ingester struct {
	IngestFn func(ctx context.Context, url string, sourceType ragkb.SourceType, res *ragkb.ScrapeResult) (*ragkb.IngestResult, error)
}

func (i *Ingester) Ingest(ctx context.Context, url string, sourceType ragkb.SourceType, res *ragkb.ScrapeResult) (*ragkb.IngestResult, error) {
	return i.IngestFn(ctx, url, sourceType, res)
}
