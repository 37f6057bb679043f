package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedClock returns a registry clock that can be advanced by tests.
func fixedClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func newURL(raw string, priority int) *ragkb.DiscoveredURL {
	st := ragkb.DetectSourceType(raw)
	return &ragkb.DiscoveredURL{
		URL:              raw,
		URLHash:          ragkb.HashURL(raw),
		SourceType:       st,
		DiscoveredFrom:   ragkb.FromUserInput,
		RefreshFrequency: ragkb.DefaultRefreshFrequency(st),
		Priority:         priority,
	}
}

func setupRegistry(t *testing.T) (*sqlite.URLRegistry, func(time.Duration)) {
	t.Helper()
	reg := sqlite.NewURLRegistry(setupTestDB(t))
	now, advance := fixedClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	reg.Now = now
	return reg, advance
}

func TestURLRegistry_Insert(t *testing.T) {
	t.Parallel()

	t.Run("inserts pending url with defaults", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		ctx := context.Background()

		u := newURL("https://example.com/docs", 100)
		u.Metadata = map[string]string{"original_input": "https://example.com/docs"}
		id, inserted, err := reg.Insert(ctx, u)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.Positive(t, id)

		got, err := reg.FindURL(ctx, u.URLHash)
		require.NoError(t, err)
		assert.Equal(t, ragkb.StatusPending, got.Status)
		assert.Equal(t, ragkb.RefreshWeekly, got.RefreshFrequency)
		assert.Equal(t, 100, got.Priority)
		assert.Equal(t, "https://example.com/docs", got.Metadata["original_input"])
		assert.Nil(t, got.LastCrawledAt)
	})

	t.Run("duplicate hash is not an error", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		ctx := context.Background()

		_, inserted, err := reg.Insert(ctx, newURL("https://example.com/a", 1))
		require.NoError(t, err)
		require.True(t, inserted)

		dup := newURL("https://EXAMPLE.com/a/", 99)
		_, inserted, err = reg.Insert(ctx, dup)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := reg.FindURL(ctx, dup.URLHash)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Priority, "existing row is untouched")
	})

	t.Run("rejects invalid entry", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		_, _, err := reg.Insert(context.Background(), &ragkb.DiscoveredURL{URL: "https://x.io"})
		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	})
}

func TestURLRegistry_Exists(t *testing.T) {
	t.Parallel()

	reg, _ := setupRegistry(t)
	ctx := context.Background()
	u := newURL("https://example.com/a", 1)

	ok, err := reg.Exists(ctx, u.URLHash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = reg.Insert(ctx, u)
	require.NoError(t, err)

	ok, err = reg.Exists(ctx, u.URLHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestURLRegistry_Pending(t *testing.T) {
	t.Parallel()

	t.Run("orders by priority then discovery time", func(t *testing.T) {
		t.Parallel()

		reg, advance := setupRegistry(t)
		ctx := context.Background()

		for _, u := range []*ragkb.DiscoveredURL{
			newURL("https://example.com/low", 10),
			newURL("https://example.com/high-old", 100),
		} {
			_, _, err := reg.Insert(ctx, u)
			require.NoError(t, err)
		}
		advance(time.Minute)
		_, _, err := reg.Insert(ctx, newURL("https://example.com/high-new", 100))
		require.NoError(t, err)

		pending, err := reg.Pending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 3)
		assert.Equal(t, "https://example.com/high-old", pending[0].URL)
		assert.Equal(t, "https://example.com/high-new", pending[1].URL)
		assert.Equal(t, "https://example.com/low", pending[2].URL)

		limited, err := reg.Pending(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("failed urls return until retries are exhausted", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		ctx := context.Background()
		u := newURL("https://example.com/flaky", 1)
		_, _, err := reg.Insert(ctx, u)
		require.NoError(t, err)

		for i := 0; i < sqlite.DefaultMaxRetries-1; i++ {
			require.NoError(t, reg.MarkFailed(ctx, u.URLHash, "HTTP 503"))
			pending, err := reg.Pending(ctx, 10)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, ragkb.StatusFailed, pending[0].Status)
			assert.Equal(t, "HTTP 503", pending[0].ErrorMessage)
		}

		require.NoError(t, reg.MarkFailed(ctx, u.URLHash, "HTTP 503"))
		pending, err := reg.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("abandoned urls leave the queue immediately", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		ctx := context.Background()
		u := newURL("https://www.youtube.com/watch?v=gone", 1)
		_, _, err := reg.Insert(ctx, u)
		require.NoError(t, err)

		require.NoError(t, reg.MarkAbandoned(ctx, u.URLHash, "Video unavailable"))

		pending, err := reg.Pending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		got, err := reg.FindURL(ctx, u.URLHash)
		require.NoError(t, err)
		assert.Equal(t, ragkb.StatusFailed, got.Status)
		assert.Equal(t, sqlite.DefaultMaxRetries, got.RetryCount)
	})
}

func TestURLRegistry_MarkScraped(t *testing.T) {
	t.Parallel()

	t.Run("resets retries and schedules refresh", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		ctx := context.Background()
		u := newURL("https://example.com/docs", 1)
		_, _, err := reg.Insert(ctx, u)
		require.NoError(t, err)
		require.NoError(t, reg.MarkFailed(ctx, u.URLHash, "timeout"))

		require.NoError(t, reg.MarkScraped(ctx, u.URLHash, ragkb.Validators{ETag: `"v1"`, LastModified: "Mon"}))

		got, err := reg.FindURL(ctx, u.URLHash)
		require.NoError(t, err)
		assert.Equal(t, ragkb.StatusScraped, got.Status)
		assert.Zero(t, got.RetryCount)
		assert.Empty(t, got.ErrorMessage)
		require.NotNil(t, got.LastCrawledAt)
		require.NotNil(t, got.NextRefreshAt)
		assert.Equal(t, 7*24*time.Hour, got.NextRefreshAt.Sub(*got.LastCrawledAt))
		assert.Equal(t, `"v1"`, got.HTTPETag)
		assert.Equal(t, "Mon", got.HTTPLastModified)
	})

	t.Run("returns not found for unknown hash", func(t *testing.T) {
		t.Parallel()

		reg, _ := setupRegistry(t)
		err := reg.MarkScraped(context.Background(), "missing", ragkb.Validators{})
		assert.Equal(t, ragkb.ENOTFOUND, ragkb.ErrorCode(err))
		assert.Equal(t, ragkb.ENOTFOUND, ragkb.ErrorCode(reg.MarkFailed(context.Background(), "missing", "x")))
	})
}

func TestURLRegistry_DueForRefresh(t *testing.T) {
	t.Parallel()

	reg, advance := setupRegistry(t)
	ctx := context.Background()

	site := newURL("https://example.com/docs", 50)
	video := newURL("https://www.youtube.com/watch?v=abc", 50)
	repo := newURL("https://github.com/a/b", 80)
	pending := newURL("https://example.com/pending", 100)
	for _, u := range []*ragkb.DiscoveredURL{site, video, repo, pending} {
		_, _, err := reg.Insert(ctx, u)
		require.NoError(t, err)
	}
	for _, u := range []*ragkb.DiscoveredURL{site, video, repo} {
		require.NoError(t, reg.MarkScraped(ctx, u.URLHash, ragkb.Validators{}))
	}

	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	due, err := reg.DueForRefresh(ctx, start.Add(24*time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, due, "nothing is due a day later")

	advance(8 * 24 * time.Hour)
	due, err = reg.DueForRefresh(ctx, start.Add(8*24*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, due, 2, "never-refresh videos and pending urls are excluded")
	assert.Equal(t, repo.URL, due[0].URL, "higher priority first")
	assert.Equal(t, site.URL, due[1].URL)

	require.NoError(t, reg.UpdateRefresh(ctx, site.URLHash, ragkb.RefreshUpdate{
		NextRefreshAt: start.Add(30 * 24 * time.Hour),
	}))
	due, err = reg.DueForRefresh(ctx, start.Add(8*24*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, repo.URL, due[0].URL)
}

func TestURLRegistry_UpdateRefresh(t *testing.T) {
	t.Parallel()

	reg, _ := setupRegistry(t)
	ctx := context.Background()
	u := newURL("https://example.com/docs", 1)
	_, _, err := reg.Insert(ctx, u)
	require.NoError(t, err)

	crawled := time.Date(2025, 4, 1, 3, 0, 0, 0, time.UTC)
	next := crawled.Add(7 * 24 * time.Hour)
	require.NoError(t, reg.UpdateRefresh(ctx, u.URLHash, ragkb.RefreshUpdate{
		NextRefreshAt: next,
		LastCrawledAt: &crawled,
		Validators:    &ragkb.Validators{ETag: "e2"},
	}))

	got, err := reg.FindURL(ctx, u.URLHash)
	require.NoError(t, err)
	assert.True(t, next.Equal(*got.NextRefreshAt))
	assert.True(t, crawled.Equal(*got.LastCrawledAt))
	assert.Equal(t, "e2", got.HTTPETag)

	err = reg.UpdateRefresh(ctx, "missing", ragkb.RefreshUpdate{NextRefreshAt: next})
	assert.Equal(t, ragkb.ENOTFOUND, ragkb.ErrorCode(err))
}

func TestURLRegistry_StatsAndClear(t *testing.T) {
	t.Parallel()

	reg, _ := setupRegistry(t)
	ctx := context.Background()

	a := newURL("https://example.com/a", 1)
	b := newURL("https://github.com/a/b", 1)
	c := newURL("https://www.youtube.com/watch?v=x", 1)
	for _, u := range []*ragkb.DiscoveredURL{a, b, c} {
		_, _, err := reg.Insert(ctx, u)
		require.NoError(t, err)
	}
	require.NoError(t, reg.MarkScraped(ctx, a.URLHash, ragkb.Validators{}))
	require.NoError(t, reg.MarkFailed(ctx, b.URLHash, "boom"))

	stats, err := reg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Scraped)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.BySourceType[ragkb.SourceGitHub])
	assert.Equal(t, 1, stats.BySourceType[ragkb.SourceYouTubeVideo])

	failed := ragkb.StatusFailed
	n, err := reg.Clear(ctx, ragkb.ClearFilter{Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = reg.Clear(ctx, ragkb.ClearFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "queue clear removes the pending row only")

	n, err = reg.Clear(ctx, ragkb.ClearFilter{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stats, err = reg.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}
