package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/crawl"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Queue drains the registry's pending URLs through scraping and ingestion.
type Queue struct {
	Registry  ragkb.URLRegistry
	Scrapers  ragkb.Scrapers
	Processor ragkb.Ingester

	// Channels expands youtube_channel rows into video rows.
	Channels ragkb.ChannelCrawler

	// Pages expands user-added websites into per-page rows. When nil only
	// the root page is ingested.
	Pages ragkb.PageDiscoverer

	Config              ragkb.QueueConfig
	MaxVideosPerChannel int
	MaxPagesPerSite     int
	DiscoveredPriority  int

	// RetryDelays overrides the scrape backoff derived from Config.
	RetryDelays []time.Duration

	Logger *slog.Logger

	once      sync.Once
	youtubeSV *semaphore.Weighted
}

// ProcessBatch processes up to Config.BatchSize pending URLs. One URL
// failing never stops the others.
func (q *Queue) ProcessBatch(ctx context.Context) (ragkb.BatchReport, error) {
	var report ragkb.BatchReport

	urls, err := q.Registry.Pending(ctx, q.Config.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list pending urls: %w", err)
	}
	if len(urls) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(q.Config.ConcurrentWorkers, 1))
	for _, u := range urls {
		g.Go(func() error {
			ok := q.processRateLimited(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if ok {
				report.Succeeded++
			} else {
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	q.logger().Info("batch processed",
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report, ctx.Err()
}

// ProcessAll runs batches until the queue is empty, maxBatches is reached
// (when positive) or ctx is done.
func (q *Queue) ProcessAll(ctx context.Context, maxBatches int) (ragkb.BatchReport, error) {
	var total ragkb.BatchReport
	for batch := 1; maxBatches <= 0 || batch <= maxBatches; batch++ {
		report, err := q.ProcessBatch(ctx)
		total.Add(report)
		if err != nil {
			return total, err
		}
		if report.Processed == 0 {
			break
		}
		if maxBatches > 0 && batch == maxBatches {
			break
		}
		if d := q.Config.DelayBetweenBatches.D(); d > 0 {
			select {
			case <-ctx.Done():
				return total, ctx.Err()
			case <-time.After(d):
			}
		}
	}
	return total, nil
}

// processRateLimited gates YouTube sources behind a semaphore, holding the
// slot for a jittered delay after the task finishes.
func (q *Queue) processRateLimited(ctx context.Context, u *ragkb.DiscoveredURL) bool {
	if !u.SourceType.IsYouTube() {
		return q.process(ctx, u)
	}

	sem := q.rateSensitive()
	if err := sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer sem.Release(1)

	ok := q.process(ctx, u)
	if d := jitter(q.Config.RateSensitiveDelay.D()); d > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
	}
	return ok
}

// process handles one URL and records its outcome in the registry.
func (q *Queue) process(ctx context.Context, u *ragkb.DiscoveredURL) bool {
	log := q.logger().With("url", u.URL, "type", u.SourceType)

	var err error
	var validators ragkb.Validators
	switch u.SourceType {
	case ragkb.SourceYouTubeChannel:
		err = q.expandChannel(ctx, u)
	default:
		validators, err = q.scrapeAndIngest(ctx, u)
	}

	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		q.recordFailure(ctx, log, u, err)
		return false
	}

	if err := q.Registry.MarkScraped(ctx, u.URLHash, validators); err != nil {
		log.Error("failed to mark url scraped", "err", err)
		return false
	}
	return true
}

// scrapeAndIngest scrapes u with backoff and stores the result.
func (q *Queue) scrapeAndIngest(ctx context.Context, u *ragkb.DiscoveredURL) (ragkb.Validators, error) {
	scraper, err := q.Scrapers.For(u.SourceType)
	if err != nil {
		return ragkb.Validators{}, &ragkb.ScrapeError{URL: u.URL, Err: err}
	}

	if u.SourceType == ragkb.SourceWebsite && !isCrawledPage(u) {
		if err := q.expandWebsite(ctx, u); err != nil {
			return ragkb.Validators{}, err
		}
	}

	delays := q.retryDelays()
	res, err := crawl.Retry(ctx, delays, q.logger(), func(ctx context.Context, _ int) (*ragkb.ScrapeResult, error) {
		return scraper.Scrape(ctx, u.URL)
	})
	if err != nil {
		return ragkb.Validators{}, exhausted(ctx, len(delays)+1, err)
	}

	if _, err := q.Processor.Ingest(ctx, u.URL, u.SourceType, res); err != nil {
		return ragkb.Validators{}, err
	}
	return res.Validators, nil
}

// expandChannel queues the channel's videos as individual rows.
func (q *Queue) expandChannel(ctx context.Context, u *ragkb.DiscoveredURL) error {
	if q.Channels == nil {
		return &ragkb.ScrapeError{URL: u.URL, Err: errors.New("no channel crawler configured")}
	}
	delays := q.retryDelays()
	videos, err := crawl.Retry(ctx, delays, q.logger(), func(ctx context.Context, _ int) ([]string, error) {
		return q.Channels.DiscoverVideos(ctx, u.URL, q.MaxVideosPerChannel)
	})
	if err != nil {
		return exhausted(ctx, len(delays)+1, err)
	}
	added := q.enqueue(ctx, videos, ragkb.SourceYouTubeVideo, ragkb.RefreshNever, ragkb.FromChannel+u.URL)
	q.logger().Info("channel expanded", "url", u.URL, "videos", len(videos), "added", added)
	return nil
}

// expandWebsite queues every page of a user-added site other than the root.
// Discovery failures only mean the root is ingested alone.
func (q *Queue) expandWebsite(ctx context.Context, u *ragkb.DiscoveredURL) error {
	if q.Pages == nil {
		return nil
	}
	pages, err := q.Pages.DiscoverPages(ctx, u.URL, q.MaxPagesPerSite)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.logger().Warn("page discovery failed", "url", u.URL, "err", err)
		return nil
	}
	if len(pages) <= 1 {
		return nil
	}

	var others []string
	for _, p := range pages {
		if ragkb.HashURL(p) != u.URLHash {
			others = append(others, p)
		}
	}
	added := q.enqueue(ctx, others, ragkb.SourceWebsite, ragkb.RefreshMonthly, ragkb.FromWebsiteCrawl+u.URL)
	q.logger().Info("website expanded", "url", u.URL, "pages", len(pages), "added", added)
	return nil
}

// enqueue inserts urls as pending rows and returns how many were new.
func (q *Queue) enqueue(ctx context.Context, urls []string, t ragkb.SourceType, freq ragkb.RefreshFrequency, from string) int {
	added := 0
	for _, raw := range urls {
		normalized, err := ragkb.NormalizeURL(raw)
		if err != nil {
			continue
		}
		_, inserted, err := q.Registry.Insert(ctx, &ragkb.DiscoveredURL{
			URL:              normalized,
			URLHash:          ragkb.HashURL(normalized),
			SourceType:       t,
			Status:           ragkb.StatusPending,
			DiscoveredFrom:   from,
			RefreshFrequency: freq,
			Priority:         q.DiscoveredPriority,
		})
		if err != nil {
			q.logger().Warn("failed to queue url", "url", normalized, "err", err)
			continue
		}
		if inserted {
			added++
		}
	}
	return added
}

// exhaustedError is a temporary failure that outlived its retry budget.
type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.attempts, e.err)
}

func (e *exhaustedError) Unwrap() error { return e.err }

// exhausted wraps a temporary error returned by crawl.Retry, which only
// returns one once every attempt has failed.
func exhausted(ctx context.Context, attempts int, err error) error {
	if ctx.Err() != nil || !ragkb.IsTemporary(err) {
		return err
	}
	return &exhaustedError{attempts: attempts, err: err}
}

// recordFailure marks u failed (retryable) or abandoned (permanent or out of
// retries).
func (q *Queue) recordFailure(ctx context.Context, log *slog.Logger, u *ragkb.DiscoveredURL, err error) {
	msg := err.Error()
	var ex *exhaustedError
	if ragkb.IsTemporary(err) && !errors.As(err, &ex) {
		log.Warn("url failed", "retryCount", u.RetryCount+1, "err", err)
		if merr := q.Registry.MarkFailed(ctx, u.URLHash, msg); merr != nil {
			log.Error("failed to mark url failed", "err", merr)
		}
		return
	}
	log.Warn("url abandoned", "err", err)
	if merr := q.Registry.MarkAbandoned(ctx, u.URLHash, msg); merr != nil {
		log.Error("failed to mark url abandoned", "err", merr)
	}
}

func (q *Queue) retryDelays() []time.Duration {
	if q.RetryDelays != nil {
		return q.RetryDelays
	}
	return crawl.Backoff(q.Config.RetryBase.D(), q.Config.RetryFactor, q.Config.MaxRetries)
}

func (q *Queue) rateSensitive() *semaphore.Weighted {
	q.once.Do(func() {
		q.youtubeSV = semaphore.NewWeighted(int64(max(q.Config.RateSensitiveConcurrency, 1)))
	})
	return q.youtubeSV
}

func (q *Queue) logger() *slog.Logger {
	if q.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return q.Logger
}

func isCrawledPage(u *ragkb.DiscoveredURL) bool {
	return strings.HasPrefix(u.DiscoveredFrom, ragkb.FromWebsiteCrawl)
}

// jitter spreads d uniformly over [0.8d, 1.2d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}
