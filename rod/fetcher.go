// Package rod implements ragkb.Fetcher with a headless Chrome browser, for
// sites that render their content with JavaScript.
package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Defaults for browser fetching.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxPages     = 75
)

var _ ragkb.Fetcher = (*Fetcher)(nil)

// Fetcher renders pages in a headless browser. The browser is relaunched
// after MaxPages pages since Chrome's memory baseline only grows.
// Fetcher is safe for concurrent use.
type Fetcher struct {
	timeout  time.Duration
	maxPages int

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	pages    int
	inflight sync.WaitGroup
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout bounds navigation and load for one page.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithMaxPages sets how many pages a browser serves before it is relaunched.
func WithMaxPages(n int) Option {
	return func(f *Fetcher) { f.maxPages = n }
}

// NewFetcher launches a headless browser. Close must be called when the
// Fetcher is no longer needed.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	f := &Fetcher{timeout: DefaultFetchTimeout, maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(f)
	}
	b, l, err := launch()
	if err != nil {
		return nil, err
	}
	f.browser, f.launcher = b, l
	return f, nil
}

func launch() (*rod.Browser, *launcher.Launcher, error) {
	l := launcher.New().
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Set("disable-dev-shm-usage").
		Leakless(true).
		Headless(true)
	u, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	return b, l, nil
}

// acquire returns the browser for one page, relaunching it first when it
// has served maxPages. A failed relaunch keeps the old browser.
func (f *Fetcher) acquire() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil, ragkb.Errorf(ragkb.EUNAVAILABLE, "browser closed")
	}
	if f.maxPages > 0 && f.pages >= f.maxPages {
		f.inflight.Wait()
		if b, l, err := launch(); err == nil {
			_ = f.browser.Close()
			f.launcher.Kill()
			f.browser, f.launcher = b, l
			f.pages = 0
		}
	}
	f.pages++
	f.inflight.Add(1)
	return f.browser, nil
}

// Fetch navigates to url and returns the rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	browser, err := f.acquire()
	if err != nil {
		return "", err
	}
	defer f.inflight.Done()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", &ragkb.ScrapeError{URL: url, Temporary: true, Err: fmt.Errorf("open page: %w", err)}
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(f.timeout)
	if err := page.Navigate(url); err != nil {
		return "", f.classify(ctx, url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", f.classify(ctx, url, err)
	}
	html, err := page.HTML()
	if err != nil {
		return "", f.classify(ctx, url, err)
	}
	return html, nil
}

func (f *Fetcher) classify(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ragkb.NewScrapeError(url, err)
}

// Close shuts the browser down. It is safe to call more than once.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.launcher.Kill()
	f.browser, f.launcher = nil, nil
	return err
}
