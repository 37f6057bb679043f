package mock

import (
	"context"

	"github.com/fwojciec/ragkb"
)

var (
	_ ragkb.Fetcher        = (*Fetcher)(nil)
	_ ragkb.Extractor      = (*Extractor)(nil)
	_ ragkb.Converter      = (*Converter)(nil)
	_ ragkb.MetaReader     = (*MetaReader)(nil)
	_ ragkb.SitemapService = (*SitemapService)(nil)
	_ ragkb.LinkExtractor  = (*LinkExtractor)(nil)
	_ ragkb.DomainLimiter  = (*DomainLimiter)(nil)
)

// Fetcher is a mock implementation of ragkb.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, url string) (string, error)
	CloseFn func() error
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	return f.FetchFn(ctx, url)
}

func (f *Fetcher) Close() error {
	if f.CloseFn == nil {
		return nil
	}
	return f.CloseFn()
}

// Extractor is a mock implementation of ragkb.Extractor.
type Extractor struct {
	ExtractFn func(html string) (*ragkb.ExtractResult, error)
}

func (e *Extractor) Extract(html string) (*ragkb.ExtractResult, error) {
	return e.ExtractFn(html)
}

// Converter is a mock implementation of ragkb.Converter.
type Converter struct {
	ConvertFn func(html, pageURL string) (string, error)
}

func (c *Converter) Convert(html, pageURL string) (string, error) {
	return c.ConvertFn(html, pageURL)
}

// MetaReader is a mock implementation of ragkb.MetaReader.
type MetaReader struct {
	ReadMetaFn func(html string) (ragkb.PageMeta, error)
}

func (m *MetaReader) ReadMeta(html string) (ragkb.PageMeta, error) {
	return m.ReadMetaFn(html)
}

// SitemapService is a mock implementation of ragkb.SitemapService.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string, filter *ragkb.URLFilter) ([]string, error)
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *ragkb.URLFilter) ([]string, error) {
	return s.DiscoverURLsFn(ctx, baseURL, filter)
}

// LinkExtractor is a mock implementation of ragkb.LinkExtractor.
type LinkExtractor struct {
	ExtractLinksFn func(html string, baseURL string) ([]ragkb.DiscoveredLink, error)
}

func (l *LinkExtractor) ExtractLinks(html string, baseURL string) ([]ragkb.DiscoveredLink, error) {
	return l.ExtractLinksFn(html, baseURL)
}

// DomainLimiter is a mock implementation of ragkb.DomainLimiter.
type DomainLimiter struct {
	WaitFn func(ctx context.Context, domain string) error
}

func (d *DomainLimiter) Wait(ctx context.Context, domain string) error {
	if d.WaitFn == nil {
		return nil
	}
	return d.WaitFn(ctx, domain)
}
