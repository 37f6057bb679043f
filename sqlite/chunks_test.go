package sqlite_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(docID string, index, total int, st ragkb.SourceType, vec ...float32) *ragkb.Chunk {
	return &ragkb.Chunk{
		ID:          ragkb.ChunkID(docID, index),
		DocumentID:  docID,
		ChunkIndex:  index,
		TotalChunks: total,
		Content:     "content of " + docID,
		Embedding:   vec,
		SourceURL:   "https://example.com/" + docID,
		SourceType:  st,
		Domain:      "example.com",
		Language:    "en",
	}
}

func TestChunkStore_AddAndGet(t *testing.T) {
	t.Parallel()

	t.Run("round-trips metadata", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)
		ctx := context.Background()

		published := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		c := testChunk("doc1", 0, 1, ragkb.SourceYouTubeVideo, 1, 0)
		c.PublishedAt = &published
		c.HasCodeExample = true
		c.ContentHash = "abc"
		c.Source.Video = &ragkb.VideoFields{Channel: "Fireship", Title: "Go in 100s", TimestampStart: "00:10"}
		c.Enrichment = ragkb.Enrichment{Keywords: []string{"go"}, Difficulty: "beginner"}
		c.Extra = map[string]string{"enrichment": "fallback"}

		require.NoError(t, store.Add(ctx, []*ragkb.Chunk{c}))

		got, err := store.Get(ctx, ragkb.ChunkFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, c.ID, got[0].ID)
		assert.True(t, got[0].HasCodeExample)
		assert.Equal(t, "abc", got[0].ContentHash)
		require.NotNil(t, got[0].Source.Video)
		assert.Equal(t, "Fireship", got[0].Source.Video.Channel)
		assert.Nil(t, got[0].Source.Repo)
		assert.Equal(t, []string{"go"}, got[0].Enrichment.Keywords)
		assert.Equal(t, "fallback", got[0].Extra["enrichment"])
		require.NotNil(t, got[0].PublishedAt)
		assert.True(t, published.Equal(*got[0].PublishedAt))
		assert.False(t, got[0].ProcessedAt.IsZero())
	})

	t.Run("upserts by id", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)
		ctx := context.Background()

		c := testChunk("doc1", 0, 1, ragkb.SourceWebsite, 1, 0)
		require.NoError(t, store.Add(ctx, []*ragkb.Chunk{c}))
		c.Content = "updated"
		require.NoError(t, store.Add(ctx, []*ragkb.Chunk{c}))

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := store.Get(ctx, ragkb.ChunkFilter{ID: &c.ID})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "updated", got[0].Content)
	})

	t.Run("rejects chunks without embeddings", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)
		err := store.Add(context.Background(), []*ragkb.Chunk{testChunk("doc1", 0, 1, ragkb.SourceWebsite)})
		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	})

	t.Run("orders by document and chunk index and paginates", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)
		ctx := context.Background()
		require.NoError(t, store.Add(ctx, []*ragkb.Chunk{
			testChunk("b", 1, 2, ragkb.SourceWebsite, 1),
			testChunk("a", 0, 1, ragkb.SourceWebsite, 1),
			testChunk("b", 0, 2, ragkb.SourceWebsite, 1),
		}))

		got, err := store.Get(ctx, ragkb.ChunkFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "a", got[0].DocumentID)
		assert.Equal(t, 0, got[1].ChunkIndex)
		assert.Equal(t, 1, got[2].ChunkIndex)
		assert.Nil(t, got[0].Embedding, "Get does not load embeddings")

		page, err := store.Get(ctx, ragkb.ChunkFilter{Offset: 1})
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})
}

func TestChunkStore_Query(t *testing.T) {
	t.Parallel()

	store := sqlite.NewChunkStore(setupTestDB(t), nil)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{
		testChunk("near", 0, 1, ragkb.SourceWebsite, 1, 0.1),
		testChunk("far", 0, 1, ragkb.SourceWebsite, -1, 0),
		testChunk("mid", 0, 1, ragkb.SourceGitHub, 0, 1),
	}))

	matches, err := store.Query(ctx, []float32{1, 0}, 2, ragkb.ChunkFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].Chunk.DocumentID)
	assert.Equal(t, "mid", matches[1].Chunk.DocumentID)
	assert.Less(t, matches[0].Distance, matches[1].Distance)
	assert.InDelta(t, 1.0, matches[1].Distance, 1e-6)

	github := ragkb.SourceGitHub
	filtered, err := store.Query(ctx, []float32{1, 0}, 10, ragkb.ChunkFilter{SourceType: &github})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "mid", filtered[0].Chunk.DocumentID)

	none, err := store.Query(ctx, []float32{1, 0}, 0, ragkb.ChunkFilter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChunkStore_Delete(t *testing.T) {
	t.Parallel()

	store := sqlite.NewChunkStore(setupTestDB(t), nil)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{
		testChunk("a", 0, 2, ragkb.SourceWebsite, 1),
		testChunk("a", 1, 2, ragkb.SourceWebsite, 1),
		testChunk("b", 0, 1, ragkb.SourceWebsite, 1),
		testChunk("c", 0, 1, ragkb.SourceWebsite, 1),
	}))

	n, err := store.DeleteByDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = store.DeleteBySourceURL(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete(ctx, []string{ragkb.ChunkID("c", 0)}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChunkStore_Version(t *testing.T) {
	t.Parallel()

	store := sqlite.NewChunkStore(setupTestDB(t), nil)
	ctx := context.Background()

	v0, err := store.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{testChunk("a", 0, 1, ragkb.SourceWebsite, 1)}))
	v1, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, v1, v0)

	_, err = store.DeleteByDocument(ctx, "missing")
	require.NoError(t, err)
	v2, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "no-op deletes do not bump the version")

	require.NoError(t, store.Reset(ctx))
	v3, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, v3, v2)
}

func TestChunkStore_Stats(t *testing.T) {
	t.Parallel()

	store := sqlite.NewChunkStore(setupTestDB(t), nil)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{
		testChunk("a", 0, 2, ragkb.SourceWebsite, 1),
		testChunk("a", 1, 2, ragkb.SourceWebsite, 1),
		testChunk("b", 0, 1, ragkb.SourceGitHub, 1),
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChunks)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.BySourceType[ragkb.SourceWebsite])
	assert.Equal(t, 1, stats.BySourceType[ragkb.SourceGitHub])
}

func TestChunkStore_MissingCollection(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	db := setupTestDB(t)
	store := sqlite.NewChunkStore(db, slog.New(slog.NewTextHandler(&buf, nil)))
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{testChunk("a", 0, 1, ragkb.SourceWebsite, 1)}))
	_, err := db.ExecContext(ctx, "DROP TABLE chunks")
	require.NoError(t, err)

	matches, err := store.Query(ctx, []float32{1}, 5, ragkb.ChunkFilter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Contains(t, buf.String(), "chunk collection missing")

	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{testChunk("b", 0, 1, ragkb.SourceWebsite, 1)}))
	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChunkStore_StatsMissingCollection(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	store := sqlite.NewChunkStore(db, nil)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []*ragkb.Chunk{testChunk("a", 0, 1, ragkb.SourceGitHub, 1)}))
	_, err := db.ExecContext(ctx, "DROP TABLE chunks")
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks)
	assert.Zero(t, stats.Documents)
	assert.Empty(t, stats.BySourceType)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestChunkStore_ReplaceDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("overwrites in place and drops the tail", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)
		require.NoError(t, store.Add(ctx, []*ragkb.Chunk{
			testChunk("a", 0, 3, ragkb.SourceWebsite, 1),
			testChunk("a", 1, 3, ragkb.SourceWebsite, 1),
			testChunk("a", 2, 3, ragkb.SourceWebsite, 1),
			testChunk("b", 0, 1, ragkb.SourceWebsite, 1),
		}))
		before, err := store.Version(ctx)
		require.NoError(t, err)

		fresh := testChunk("a", 0, 1, ragkb.SourceWebsite, 0, 1)
		fresh.Content = "rewritten"
		removed, err := store.ReplaceDocument(ctx, "a", []*ragkb.Chunk{fresh})

		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		doc := "a"
		chunks, err := store.Get(ctx, ragkb.ChunkFilter{DocumentID: &doc})
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "rewritten", chunks[0].Content)
		assert.Equal(t, ragkb.ChunkID("a", 0), chunks[0].ID)

		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n, "other documents are untouched")

		after, err := store.Version(ctx)
		require.NoError(t, err)
		assert.Greater(t, after, before)
	})

	t.Run("invalid chunks leave the stored version", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)
		require.NoError(t, store.Add(ctx, []*ragkb.Chunk{testChunk("a", 0, 1, ragkb.SourceWebsite, 1)}))

		_, err := store.ReplaceDocument(ctx, "a", []*ragkb.Chunk{testChunk("a", 0, 1, ragkb.SourceWebsite)})

		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("rejects chunks of another document", func(t *testing.T) {
		t.Parallel()

		store := sqlite.NewChunkStore(setupTestDB(t), nil)

		_, err := store.ReplaceDocument(ctx, "a", []*ragkb.Chunk{testChunk("b", 0, 1, ragkb.SourceWebsite, 1)})

		assert.Equal(t, ragkb.EINVALID, ragkb.ErrorCode(err))
	})
}
