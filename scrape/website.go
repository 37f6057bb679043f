// Package scrape turns web pages into markdown scrape results. It composes
// a fetcher, a main-content extractor with a fallback, an HTML-to-markdown
// converter and a metadata reader.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.Scraper = (*Website)(nil)

// Website scrapes documentation and article pages.
type Website struct {
	Fetcher   ragkb.Fetcher
	Extractor ragkb.Extractor

	// Fallback is tried when Extractor fails or finds no content.
	Fallback ragkb.Extractor

	Converter   ragkb.Converter
	Meta        ragkb.MetaReader
	Head        ragkb.HeadChecker
	RateLimiter ragkb.DomainLimiter
	Logger      *slog.Logger
}

// Scrape fetches url and returns its main content as markdown.
func (w *Website) Scrape(ctx context.Context, url string) (*ragkb.ScrapeResult, error) {
	domain := ragkb.Domain(url)
	if w.RateLimiter != nil {
		if err := w.RateLimiter.Wait(ctx, domain); err != nil {
			return nil, err
		}
	}

	html, err := w.Fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ragkb.NewScrapeError(url, err)
	}

	extracted, err := w.extract(html)
	if err != nil {
		return nil, &ragkb.ScrapeError{URL: url, Err: err}
	}

	markdown, err := w.Converter.Convert(extracted.ContentHTML, url)
	if err != nil {
		return nil, &ragkb.ScrapeError{URL: url, Err: fmt.Errorf("convert to markdown: %w", err)}
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil, &ragkb.ScrapeError{URL: url, Err: errors.New("no content extracted")}
	}

	res := &ragkb.ScrapeResult{
		URL:         url,
		Content:     markdown,
		Title:       extracted.Title,
		Description: extracted.Description,
		Domain:      domain,
		Language:    extracted.Language,
		PublishedAt: extracted.PublishedAt,
	}

	if w.Meta != nil {
		if meta, err := w.Meta.ReadMeta(html); err == nil {
			res.Title = firstNonEmpty(res.Title, meta.Title)
			res.Description = firstNonEmpty(meta.Description, res.Description)
			res.Language = firstNonEmpty(meta.Language, res.Language)
			if res.PublishedAt == nil {
				res.PublishedAt = parseDate(meta.Published)
			}
		}
	}

	if w.Head != nil {
		v, err := w.Head.Head(ctx, url)
		if err != nil {
			w.logger().Debug("validator check failed", "url", url, "err", err)
		} else {
			res.Validators = v
		}
	}

	return res, nil
}

// extract runs the primary extractor and falls back when it yields nothing.
func (w *Website) extract(html string) (*ragkb.ExtractResult, error) {
	res, err := w.Extractor.Extract(html)
	if err == nil && strings.TrimSpace(res.ContentHTML) != "" {
		return res, nil
	}
	if w.Fallback == nil {
		if err != nil {
			return nil, fmt.Errorf("extract content: %w", err)
		}
		return nil, errors.New("no content extracted")
	}

	w.logger().Debug("primary extraction empty, using fallback", "err", err)
	fb, fbErr := w.Fallback.Extract(html)
	if fbErr != nil {
		return nil, fmt.Errorf("extract content: %w", fbErr)
	}
	if strings.TrimSpace(fb.ContentHTML) == "" {
		return nil, errors.New("no content extracted")
	}
	// Keep metadata the primary extractor found.
	if res != nil {
		fb.Title = firstNonEmpty(fb.Title, res.Title)
		fb.Description = firstNonEmpty(fb.Description, res.Description)
		fb.Language = firstNonEmpty(fb.Language, res.Language)
		if fb.PublishedAt == nil {
			fb.PublishedAt = res.PublishedAt
		}
	}
	return fb, nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (w *Website) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.Logger
}
