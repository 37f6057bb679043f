package scrape_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/mock"
	"github.com/fwojciec/ragkb/scrape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebsite() *scrape.Website {
	return &scrape.Website{
		Fetcher: &mock.Fetcher{
			FetchFn: func(context.Context, string) (string, error) {
				return `<html lang="en"><body><article>Hello</article></body></html>`, nil
			},
		},
		Extractor: &mock.Extractor{
			ExtractFn: func(string) (*ragkb.ExtractResult, error) {
				return &ragkb.ExtractResult{Title: "Hello Page", ContentHTML: "<p>Hello</p>"}, nil
			},
		},
		Converter: &mock.Converter{
			ConvertFn: func(html, _ string) (string, error) { return "Hello\n", nil },
		},
	}
}

func TestWebsite_Scrape(t *testing.T) {
	t.Parallel()

	t.Run("returns markdown with page metadata", func(t *testing.T) {
		t.Parallel()

		w := newWebsite()
		w.Meta = &mock.MetaReader{
			ReadMetaFn: func(string) (ragkb.PageMeta, error) {
				return ragkb.PageMeta{Title: "Ignored", Description: "About hello", Language: "en", Published: "2024-03-01"}, nil
			},
		}
		w.Head = &mock.HeadChecker{
			HeadFn: func(context.Context, string) (ragkb.Validators, error) {
				return ragkb.Validators{ETag: `"v1"`, LastModified: "Mon, 01 Jan 2024 00:00:00 GMT"}, nil
			},
		}

		res, err := w.Scrape(context.Background(), "https://www.example.com/docs/hello")

		require.NoError(t, err)
		assert.Equal(t, "Hello", res.Content)
		assert.Equal(t, "Hello Page", res.Title)
		assert.Equal(t, "About hello", res.Description)
		assert.Equal(t, "en", res.Language)
		assert.Equal(t, "example.com", res.Domain)
		require.NotNil(t, res.PublishedAt)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *res.PublishedAt)
		assert.Equal(t, `"v1"`, res.Validators.ETag)
	})

	t.Run("passes the page URL to the converter", func(t *testing.T) {
		t.Parallel()

		var gotURL string
		w := newWebsite()
		w.Converter = &mock.Converter{
			ConvertFn: func(_, pageURL string) (string, error) {
				gotURL = pageURL
				return "text", nil
			},
		}

		_, err := w.Scrape(context.Background(), "https://example.com/a")

		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", gotURL)
	})

	t.Run("falls back when primary extraction is empty", func(t *testing.T) {
		t.Parallel()

		var converted string
		w := newWebsite()
		w.Extractor = &mock.Extractor{
			ExtractFn: func(string) (*ragkb.ExtractResult, error) {
				return &ragkb.ExtractResult{Title: "Primary Title"}, nil
			},
		}
		w.Fallback = &mock.Extractor{
			ExtractFn: func(string) (*ragkb.ExtractResult, error) {
				return &ragkb.ExtractResult{ContentHTML: "<p>fallback</p>"}, nil
			},
		}
		w.Converter = &mock.Converter{
			ConvertFn: func(html, _ string) (string, error) {
				converted = html
				return "fallback", nil
			},
		}

		res, err := w.Scrape(context.Background(), "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, "<p>fallback</p>", converted)
		assert.Equal(t, "Primary Title", res.Title)
	})

	t.Run("falls back when primary extraction errors", func(t *testing.T) {
		t.Parallel()

		w := newWebsite()
		w.Extractor = &mock.Extractor{
			ExtractFn: func(string) (*ragkb.ExtractResult, error) { return nil, errors.New("boom") },
		}
		w.Fallback = &mock.Extractor{
			ExtractFn: func(string) (*ragkb.ExtractResult, error) {
				return &ragkb.ExtractResult{ContentHTML: "<p>ok</p>"}, nil
			},
		}

		res, err := w.Scrape(context.Background(), "https://example.com/")

		require.NoError(t, err)
		assert.Equal(t, "Hello", res.Content)
	})

	t.Run("returns a permanent error when no content is found", func(t *testing.T) {
		t.Parallel()

		w := newWebsite()
		w.Converter = &mock.Converter{
			ConvertFn: func(string, string) (string, error) { return "  \n", nil },
		}

		_, err := w.Scrape(context.Background(), "https://example.com/")

		require.Error(t, err)
		assert.False(t, ragkb.IsTemporary(err))
	})

	t.Run("keeps the fetcher's error classification", func(t *testing.T) {
		t.Parallel()

		w := newWebsite()
		w.Fetcher = &mock.Fetcher{
			FetchFn: func(_ context.Context, url string) (string, error) {
				return "", &ragkb.ScrapeError{URL: url, Temporary: true, Err: errors.New("HTTP 503")}
			},
		}

		_, err := w.Scrape(context.Background(), "https://example.com/")

		require.Error(t, err)
		assert.True(t, ragkb.IsTemporary(err))
	})

	t.Run("ignores validator failures", func(t *testing.T) {
		t.Parallel()

		w := newWebsite()
		w.Head = &mock.HeadChecker{
			HeadFn: func(context.Context, string) (ragkb.Validators, error) {
				return ragkb.Validators{}, errors.New("HEAD not allowed")
			},
		}

		res, err := w.Scrape(context.Background(), "https://example.com/")

		require.NoError(t, err)
		assert.True(t, res.Validators.IsZero())
	})

	t.Run("waits on the domain limiter", func(t *testing.T) {
		t.Parallel()

		var domain string
		w := newWebsite()
		w.RateLimiter = &mock.DomainLimiter{
			WaitFn: func(_ context.Context, d string) error {
				domain = d
				return nil
			},
		}

		_, err := w.Scrape(context.Background(), "https://docs.example.com/x")

		require.NoError(t, err)
		assert.Equal(t, "docs.example.com", domain)
	})
}
