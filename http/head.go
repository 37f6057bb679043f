package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.HeadChecker = (*HeadChecker)(nil)

// DefaultHeadTimeout bounds a HEAD request.
const DefaultHeadTimeout = 10 * time.Second

// HeadChecker reads cache validators with a HEAD request.
type HeadChecker struct {
	client *http.Client
}

// NewHeadChecker creates a HeadChecker. A nil client gets one with
// DefaultHeadTimeout.
func NewHeadChecker(client *http.Client) *HeadChecker {
	if client == nil {
		client = &http.Client{Timeout: DefaultHeadTimeout}
	}
	return &HeadChecker{client: client}
}

// Head returns the ETag and Last-Modified headers of url. Non-2xx
// responses are classified like Fetcher errors.
func (h *HeadChecker) Head(ctx context.Context, url string) (ragkb.Validators, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ragkb.Validators{}, &ragkb.ScrapeError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ragkb.Validators{}, ctx.Err()
		}
		return ragkb.Validators{}, &ragkb.ScrapeError{URL: url, Temporary: true, Err: err}
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ragkb.Validators{}, StatusError(url, resp.StatusCode)
	}
	return ragkb.Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}
