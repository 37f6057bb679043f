// Package refresh re-checks scraped sources on a schedule and replaces the
// indexed chunks of those that changed.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fwojciec/ragkb"
)

// DefaultBatchLimit is how many due URLs one run considers.
const DefaultBatchLimit = 100

// Report counts the outcomes of one refresh run.
type Report struct {
	Candidates int `json:"candidates"`
	// Skipped counts websites whose HTTP validators were unchanged.
	Skipped   int `json:"skipped"`
	Unchanged int `json:"unchanged"`
	Updated   int `json:"updated"`
	Failed    int `json:"failed"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeUnchanged
	outcomeUpdated
)

// Job runs one pass over the URLs due for refresh.
type Job struct {
	Registry  ragkb.URLRegistry
	Index     ragkb.VectorIndex
	Scrapers  ragkb.Scrapers
	Processor ragkb.Ingester

	// Head checks website validators before a full scrape. May be nil.
	Head ragkb.HeadChecker

	// Commits checks repository heads before a full scrape. May be nil.
	Commits ragkb.CommitChecker

	// Channels lists channel uploads; new videos are queued. May be nil.
	Channels            ragkb.ChannelCrawler
	MaxVideosPerChannel int
	DiscoveredPriority  int

	BatchLimit        int
	DelayBetweenItems time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Run refreshes every due URL in turn. One URL failing never stops the
// run; only a failure to list candidates is returned.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	limit := j.BatchLimit
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	due, err := j.Registry.DueForRefresh(ctx, j.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("list urls due for refresh: %w", err)
	}

	report := &Report{Candidates: len(due)}
	j.logger().Info("refresh started", "candidates", len(due))

	for i, u := range due {
		if i > 0 && j.DelayBetweenItems > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(j.DelayBetweenItems):
			}
		}

		out, err := j.refresh(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			j.logger().Warn("refresh failed", "url", u.URL, "type", u.SourceType, "err", err)
			continue
		}
		switch out {
		case outcomeSkipped:
			report.Skipped++
		case outcomeUnchanged:
			report.Unchanged++
		case outcomeUpdated:
			report.Updated++
		}
	}

	j.logger().Info("refresh finished",
		"candidates", report.Candidates,
		"skipped", report.Skipped,
		"unchanged", report.Unchanged,
		"updated", report.Updated,
		"failed", report.Failed,
	)
	return report, nil
}

// refresh checks one URL. Errors leave the registry and index untouched.
func (j *Job) refresh(ctx context.Context, u *ragkb.DiscoveredURL) (outcome, error) {
	log := j.logger().With("url", u.URL, "type", u.SourceType)

	switch u.SourceType {
	case ragkb.SourceWebsite:
		if v, ok := j.unchangedValidators(ctx, u); ok {
			log.Debug("http validators unchanged, skipping scrape")
			return outcomeSkipped, j.reschedule(ctx, u, false, &v)
		}
	case ragkb.SourceGitHub:
		if j.unchangedCommit(ctx, u) {
			log.Debug("commit unchanged, skipping scrape")
			return outcomeUnchanged, j.reschedule(ctx, u, true, nil)
		}
	case ragkb.SourceYouTubeChannel:
		return j.refreshChannel(ctx, u)
	}

	scraper, err := j.Scrapers.For(u.SourceType)
	if err != nil {
		return 0, err
	}
	res, err := scraper.Scrape(ctx, u.URL)
	if err != nil {
		return 0, err
	}

	documentID := ragkb.HashURL(u.URL)
	changed, err := j.changed(ctx, u.SourceType, documentID, res)
	if err != nil {
		return 0, err
	}

	var v *ragkb.Validators
	if !res.Validators.IsZero() {
		v = &res.Validators
	}
	if !changed {
		log.Debug("content unchanged")
		return outcomeUnchanged, j.reschedule(ctx, u, true, v)
	}

	result, err := j.Processor.Ingest(ctx, u.URL, u.SourceType, res)
	if err != nil {
		log.Warn("refresh not stored, previous version kept", "document", documentID, "err", err)
		return 0, err
	}
	log.Info("document refreshed", "created", result.ChunksCreated, "removed", result.ChunksRemoved)
	return outcomeUpdated, j.reschedule(ctx, u, true, v)
}

// unchangedValidators reports whether the stored Last-Modified or ETag still
// matches. Last-Modified is decisive when both sides carry it.
func (j *Job) unchangedValidators(ctx context.Context, u *ragkb.DiscoveredURL) (ragkb.Validators, bool) {
	if j.Head == nil {
		return ragkb.Validators{}, false
	}
	v, err := j.Head.Head(ctx, u.URL)
	if err != nil {
		j.logger().Debug("head check failed", "url", u.URL, "err", err)
		return ragkb.Validators{}, false
	}
	if v.LastModified != "" && u.HTTPLastModified != "" {
		return v, v.LastModified == u.HTTPLastModified
	}
	if v.ETag != "" && u.HTTPETag != "" {
		return v, v.ETag == u.HTTPETag
	}
	return v, false
}

// unchangedCommit reports whether the repository head matches the commit
// stored with the indexed chunks.
func (j *Job) unchangedCommit(ctx context.Context, u *ragkb.DiscoveredURL) bool {
	if j.Commits == nil {
		return false
	}
	stored, err := j.storedChunk(ctx, ragkb.HashURL(u.URL))
	if err != nil || stored == nil || stored.CommitHash == "" {
		return false
	}
	head, err := j.Commits.CommitHash(ctx, u.URL)
	if err != nil {
		j.logger().Debug("commit check failed", "url", u.URL, "err", err)
		return false
	}
	return head == stored.CommitHash
}

// changed compares the scraped result against the first stored chunk.
func (j *Job) changed(ctx context.Context, t ragkb.SourceType, documentID string, res *ragkb.ScrapeResult) (bool, error) {
	stored, err := j.storedChunk(ctx, documentID)
	if err != nil {
		return false, err
	}
	if stored == nil {
		return true, nil
	}
	if t == ragkb.SourceGitHub {
		commit := res.CommitHash()
		return commit == "" || stored.CommitHash == "" || commit != stored.CommitHash, nil
	}
	return res.ContentHash() != stored.ContentHash, nil
}

func (j *Job) storedChunk(ctx context.Context, documentID string) (*ragkb.Chunk, error) {
	chunks, err := j.Index.Get(ctx, ragkb.ChunkFilter{DocumentID: &documentID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("load stored chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// refreshChannel queues videos published since the last visit.
func (j *Job) refreshChannel(ctx context.Context, u *ragkb.DiscoveredURL) (outcome, error) {
	if j.Channels == nil {
		return 0, errors.New("no channel crawler configured")
	}
	videos, err := j.Channels.DiscoverVideos(ctx, u.URL, j.MaxVideosPerChannel)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, raw := range videos {
		normalized, err := ragkb.NormalizeURL(raw)
		if err != nil {
			continue
		}
		_, inserted, err := j.Registry.Insert(ctx, &ragkb.DiscoveredURL{
			URL:              normalized,
			URLHash:          ragkb.HashURL(normalized),
			SourceType:       ragkb.SourceYouTubeVideo,
			Status:           ragkb.StatusPending,
			DiscoveredFrom:   ragkb.FromChannel + u.URL,
			RefreshFrequency: ragkb.RefreshNever,
			Priority:         j.DiscoveredPriority,
		})
		if err != nil {
			return 0, err
		}
		if inserted {
			added++
		}
	}
	j.logger().Info("channel refreshed", "url", u.URL, "videos", len(videos), "added", added)

	out := outcomeUnchanged
	if added > 0 {
		out = outcomeUpdated
	}
	return out, j.reschedule(ctx, u, true, nil)
}

// reschedule advances next_refresh_at by the URL's interval. crawled also
// records the visit time.
func (j *Job) reschedule(ctx context.Context, u *ragkb.DiscoveredURL, crawled bool, v *ragkb.Validators) error {
	now := j.now()
	upd := ragkb.RefreshUpdate{
		NextRefreshAt: now.Add(u.RefreshFrequency.Interval()),
		Validators:    v,
	}
	if crawled {
		upd.LastCrawledAt = &now
	}
	if err := j.Registry.UpdateRefresh(ctx, u.URLHash, upd); err != nil {
		return fmt.Errorf("update refresh schedule: %w", err)
	}
	return nil
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now().UTC()
}

func (j *Job) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Logger
}
