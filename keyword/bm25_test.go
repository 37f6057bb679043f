package keyword_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/keyword"
	"github.com/fwojciec/ragkb/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(id, content string) *ragkb.Chunk {
	return &ragkb.Chunk{ID: id, DocumentID: "doc-" + id, SourceURL: "https://example.com/" + id, Content: content, SourceType: ragkb.SourceWebsite}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"hello", "world", "go's", "api"}, keyword.Tokenize("Hello, WORLD! (Go's) api..."))
	assert.Empty(t, keyword.Tokenize("  ... --- "))
}

func TestIndex_IDF(t *testing.T) {
	t.Parallel()

	idx := keyword.NewIndex([]*ragkb.Chunk{
		chunk("1", "alpha beta"),
		chunk("2", "alpha gamma"),
		chunk("3", "delta"),
	})

	// N=3, df(alpha)=2
	assert.InDelta(t, math.Log(1+(3-2+0.5)/(2+0.5)), idx.IDF("alpha"), 1e-9)
	// unseen terms get the maximum IDF
	assert.Greater(t, idx.IDF("missing"), idx.IDF("delta"))
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	idx := keyword.NewIndex([]*ragkb.Chunk{
		chunk("a", "fastapi websockets tutorial with examples"),
		chunk("b", "redis caching patterns"),
		chunk("c", "fastapi fastapi dependency injection"),
		chunk("d", "unrelated text about cooking"),
	})

	t.Run("ranks by score and drops zero scores", func(t *testing.T) {
		t.Parallel()

		matches := idx.Search("FastAPI", 10, nil)

		require.Len(t, matches, 2)
		assert.Equal(t, "c", matches[0].Chunk.ID)
		assert.Equal(t, "a", matches[1].Chunk.ID)
		assert.Greater(t, matches[0].Score, matches[1].Score)
	})

	t.Run("truncates to k", func(t *testing.T) {
		t.Parallel()

		matches := idx.Search("fastapi redis", 1, nil)
		assert.Len(t, matches, 1)
	})

	t.Run("applies the match predicate", func(t *testing.T) {
		t.Parallel()

		matches := idx.Search("fastapi", 10, func(c *ragkb.Chunk) bool { return c.ID == "a" })

		require.Len(t, matches, 1)
		assert.Equal(t, "a", matches[0].Chunk.ID)
	})

	t.Run("empty query returns nothing", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, idx.Search("   ", 10, nil))
	})
}

func TestIndex_Search_Empty(t *testing.T) {
	t.Parallel()

	idx := keyword.NewIndex(nil)
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Search("anything", 5, nil))
}

func TestSearcher_RebuildsWhenVersionChanges(t *testing.T) {
	t.Parallel()

	var version atomic.Int64
	var loads atomic.Int32
	contents := []*ragkb.Chunk{chunk("a", "golang channels")}

	source := &mock.VectorIndex{
		VersionFn: func(context.Context) (int64, error) { return version.Load(), nil },
		GetFn: func(context.Context, ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
			loads.Add(1)
			return contents, nil
		},
	}
	s := keyword.NewSearcher(source, nil)
	ctx := context.Background()

	matches, err := s.Search(ctx, "channels", 5, ragkb.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	_, err = s.Search(ctx, "channels", 5, ragkb.ChunkFilter{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load(), "unchanged version reuses the index")

	// content deleted from the source
	contents = nil
	version.Add(1)

	matches, err = s.Search(ctx, "channels", 5, ragkb.ChunkFilter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, int32(2), loads.Load())
}

func TestSearcher_AppliesFilter(t *testing.T) {
	t.Parallel()

	video := chunk("v", "python asyncio")
	video.SourceType = ragkb.SourceYouTubeVideo
	page := chunk("p", "python asyncio")

	source := &mock.VectorIndex{
		VersionFn: func(context.Context) (int64, error) { return 1, nil },
		GetFn: func(context.Context, ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
			return []*ragkb.Chunk{video, page}, nil
		},
	}
	s := keyword.NewSearcher(source, nil)

	st := ragkb.SourceYouTubeVideo
	matches, err := s.Search(context.Background(), "asyncio", 5, ragkb.ChunkFilter{SourceType: &st})

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v", matches[0].Chunk.ID)
}

func TestSearcher_PropagatesSourceErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("db closed")

	t.Run("version", func(t *testing.T) {
		t.Parallel()

		s := keyword.NewSearcher(&mock.VectorIndex{
			VersionFn: func(context.Context) (int64, error) { return 0, boom },
		}, nil)

		_, err := s.Search(context.Background(), "q", 5, ragkb.ChunkFilter{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("load", func(t *testing.T) {
		t.Parallel()

		s := keyword.NewSearcher(&mock.VectorIndex{
			VersionFn: func(context.Context) (int64, error) { return 1, nil },
			GetFn: func(context.Context, ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
				return nil, boom
			},
		}, nil)

		_, err := s.Search(context.Background(), "q", 5, ragkb.ChunkFilter{})
		assert.ErrorIs(t, err, boom)
	})
}

func TestSearcher_RebuildSurvivesCanceledCaller(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32
	var loadCtxErr atomic.Value

	source := &mock.VectorIndex{
		VersionFn: func(context.Context) (int64, error) { return 1, nil },
		GetFn: func(ctx context.Context, _ ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
			if loads.Add(1) == 1 {
				close(started)
				<-release
			}
			loadCtxErr.Store(fmt.Sprint(ctx.Err()))
			return []*ragkb.Chunk{chunk("a", "golang channels")}, nil
		},
	}
	s := keyword.NewSearcher(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Search(ctx, "channels", 5, ragkb.ChunkFilter{})
		firstErr <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan []ragkb.KeywordMatch, 1)
	go func() {
		matches, err := s.Search(context.Background(), "channels", 5, ragkb.ChunkFilter{})
		assert.NoError(t, err)
		second <- matches
	}()
	close(release)

	assert.Len(t, <-second, 1)
	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, "<nil>", loadCtxErr.Load())
}

func TestSearcher_KeepsNewestVersion(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var versionCalls, loads atomic.Int32

	source := &mock.VectorIndex{
		VersionFn: func(context.Context) (int64, error) {
			if versionCalls.Add(1) == 1 {
				return 1, nil
			}
			return 2, nil
		},
		GetFn: func(context.Context, ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
			if loads.Add(1) == 1 {
				close(started)
				<-release
				return []*ragkb.Chunk{chunk("old", "deleted content")}, nil
			}
			return []*ragkb.Chunk{chunk("new", "current content")}, nil
		},
	}
	s := keyword.NewSearcher(source, nil)
	ctx := context.Background()

	slow := make(chan struct{})
	go func() {
		defer close(slow)
		_, _ = s.Search(ctx, "content", 5, ragkb.ChunkFilter{})
	}()
	<-started

	_, err := s.Search(ctx, "content", 5, ragkb.ChunkFilter{})
	require.NoError(t, err)
	close(release)
	<-slow

	matches, err := s.Search(ctx, "content", 5, ragkb.ChunkFilter{})

	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "new", matches[0].Chunk.ID)
	assert.Equal(t, int32(2), loads.Load(), "a late rebuild of an older version is not kept")
}
