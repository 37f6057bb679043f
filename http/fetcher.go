// Package http provides HTTP implementations of ragkb.Fetcher,
// ragkb.HeadChecker, ragkb.SitemapService and ragkb.WebSearcher.
package http

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
	"golang.org/x/net/html/charset"
)

// DefaultFetchTimeout bounds one page request.
const DefaultFetchTimeout = 10 * time.Second

// UserAgent identifies requests made by this package.
const UserAgent = "ragkb/1.0 (+https://github.com/fwojciec/ragkb)"

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

var _ ragkb.Fetcher = (*Fetcher)(nil)

// Fetcher downloads pages and feeds without running JavaScript. Bodies are
// decoded to UTF-8 from whatever charset the server or the document
// declares, and binary responses (PDFs, images, archives) are refused as
// permanent failures so they never reach extraction.
type Fetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBytes  int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the per-request timeout. Ignored with WithClient.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithClient replaces the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent overrides UserAgent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes. Longer bodies are cut.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// NewFetcher returns a Fetcher with the given options applied.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:   DefaultFetchTimeout,
		userAgent: UserAgent,
		maxBytes:  DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: f.timeout}
	}
	return f
}

// Fetch returns the page at url as UTF-8. Failures are *ragkb.ScrapeError
// classified by status code, or the context's error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	resp, err := getAs(ctx, f.client, url, f.userAgent)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if !isTextual(contentType) {
		return "", &ragkb.ScrapeError{URL: url, Err: fmt.Errorf("unsupported content type %q", contentType)}
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.maxBytes), contentType)
	if err != nil {
		return "", &ragkb.ScrapeError{URL: url, Err: fmt.Errorf("decode body: %w", err)}
	}
	b, err := io.ReadAll(body)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ragkb.ScrapeError{URL: url, Temporary: true, Err: fmt.Errorf("read body: %w", err)}
	}
	return string(b), nil
}

// Close is a no-op; http.Client holds nothing that needs releasing.
func (f *Fetcher) Close() error {
	return nil
}

// isTextual accepts text, XML and JSON media types: pages, feeds and
// caption tracks. A missing Content-Type is given the benefit of the doubt.
func isTextual(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/xml", mt == "application/json", mt == "application/javascript":
		return true
	case strings.HasSuffix(mt, "+xml"), strings.HasSuffix(mt, "+json"):
		return true
	}
	return false
}

func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	return getAs(ctx, client, url, UserAgent)
}

// getAs issues a GET and returns the response for 200 OK, or a classified
// scrape error.
func getAs(ctx context.Context, client *http.Client, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ragkb.ScrapeError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ragkb.ScrapeError{URL: url, Temporary: true, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, StatusError(url, resp.StatusCode)
	}
	return resp, nil
}

// StatusError classifies a non-200 response. Rate limiting, timeouts and
// server errors are temporary; other client errors are permanent.
func StatusError(url string, status int) *ragkb.ScrapeError {
	temporary := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
	return &ragkb.ScrapeError{URL: url, Temporary: temporary, Err: fmt.Errorf("HTTP %d for %s", status, url)}
}
