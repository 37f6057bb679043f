package ragkb

import "context"

// Fetcher retrieves HTML from URLs. Browser-backed implementations render
// JavaScript before returning.
type Fetcher interface {
	// Fetch returns the HTML at url. The context controls timeout and cancellation.
	Fetch(ctx context.Context, url string) (html string, err error)

	// Close releases any resources held by the fetcher.
	Close() error
}
