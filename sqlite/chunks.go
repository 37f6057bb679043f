package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
)

// Compile-time interface verification.
var _ ragkb.VectorIndex = (*ChunkStore)(nil)

// ChunkStore implements ragkb.VectorIndex using SQLite. Embeddings are
// stored as float32 blobs and queried by exhaustive cosine distance.
type ChunkStore struct {
	db     *DB
	logger *slog.Logger
}

// NewChunkStore creates a new ChunkStore. A nil logger discards output.
func NewChunkStore(db *DB, logger *slog.Logger) *ChunkStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ChunkStore{db: db, logger: logger}
}

const chunkColumns = `id, document_id, chunk_index, total_chunks, content, embedding, token_count,
	source_url, source_type, domain, content_hash, commit_hash, language, has_code_example,
	processed_at, published_at, source_fields, enrichment, extra`

// recovered recreates the chunk collection if err shows it has gone missing.
func (s *ChunkStore) recovered(ctx context.Context, op string, err error) bool {
	if !isMissingTable(err) {
		return false
	}
	s.logger.Warn("chunk collection missing, recreating", "op", op, "err", err)
	if cerr := s.db.createIndexSchema(ctx); cerr != nil {
		s.logger.Error("failed to recreate chunk collection", "err", cerr)
		return false
	}
	return true
}

// Add inserts or replaces chunks by ID.
func (s *ChunkStore) Add(ctx context.Context, chunks []*ragkb.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := prepareChunks(chunks); err != nil {
		return err
	}

	_, err := s.write(ctx, "", chunks)
	if s.recovered(ctx, "add", err) {
		_, err = s.write(ctx, "", chunks)
	}
	return err
}

// ReplaceDocument writes chunks over the document's existing rows and drops
// the rows past the new total in the same transaction, so readers see either
// the old or the new version of the document.
func (s *ChunkStore) ReplaceDocument(ctx context.Context, documentID string, chunks []*ragkb.Chunk) (int, error) {
	if documentID == "" {
		return 0, ragkb.Errorf(ragkb.EINVALID, "document id required")
	}
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return 0, ragkb.Errorf(ragkb.EINVALID, "chunk %s belongs to document %q, not %q", c.Key(), c.DocumentID, documentID)
		}
	}
	if err := prepareChunks(chunks); err != nil {
		return 0, err
	}

	n, err := s.write(ctx, documentID, chunks)
	if s.recovered(ctx, "replace_document", err) {
		n, err = s.write(ctx, documentID, chunks)
	}
	return n, err
}

func prepareChunks(chunks []*ragkb.Chunk) error {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		if len(c.Embedding) == 0 {
			return ragkb.Errorf(ragkb.EINVALID, "chunk %s has no embedding", c.Key())
		}
		if c.ID == "" {
			c.ID = ragkb.ChunkID(c.DocumentID, c.ChunkIndex)
		}
		if c.ProcessedAt.IsZero() {
			c.ProcessedAt = time.Now().UTC()
		}
	}
	return nil
}

// write upserts chunks in one transaction. When documentID is set, the
// document's chunks at or past len(chunks) are removed first and their
// count is returned.
func (s *ChunkStore) write(ctx context.Context, documentID string, chunks []*ragkb.Chunk) (int, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stale int64
	if documentID != "" {
		result, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ? AND chunk_index >= ?", documentID, len(chunks))
		if err != nil {
			return 0, fmt.Errorf("failed to delete stale chunks: %w", err)
		}
		if stale, err = result.RowsAffected(); err != nil {
			return 0, err
		}
	}

	for _, c := range chunks {
		sourceFields, err := marshalJSON(c.Source)
		if err != nil {
			return 0, err
		}
		enrichment, err := marshalJSON(c.Enrichment)
		if err != nil {
			return 0, err
		}
		extra, err := marshalJSON(c.Extra)
		if err != nil {
			return 0, err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO chunks (`+chunkColumns+`, difficulty)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, c.ID, c.DocumentID, c.ChunkIndex, c.TotalChunks, c.Content, encodeVector(c.Embedding), c.TokenCount,
			c.SourceURL, c.SourceType, c.Domain, c.ContentHash, c.CommitHash, c.Language, c.HasCodeExample,
			formatTime(c.ProcessedAt), nullTime(c.PublishedAt), sourceFields, enrichment, extra,
			c.Enrichment.Difficulty)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := bumpVersion(ctx, tx); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(stale), nil
}

// Query returns up to k chunks nearest to vec.
func (s *ChunkStore) Query(ctx context.Context, vec []float32, k int, filter ragkb.ChunkFilter) ([]ragkb.VectorMatch, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}

	filter.Limit, filter.Offset = 0, 0
	chunks, err := s.find(ctx, filter, true)
	if err != nil {
		if s.recovered(ctx, "query", err) {
			return nil, nil
		}
		return nil, err
	}

	matches := make([]ragkb.VectorMatch, 0, len(chunks))
	for _, c := range chunks {
		matches = append(matches, ragkb.VectorMatch{Chunk: c, Distance: ragkb.CosineDistance(vec, c.Embedding)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns chunks matching the filter, ordered by document and chunk index.
// Embeddings are not loaded.
func (s *ChunkStore) Get(ctx context.Context, filter ragkb.ChunkFilter) ([]*ragkb.Chunk, error) {
	chunks, err := s.find(ctx, filter, false)
	if err != nil {
		if s.recovered(ctx, "get", err) {
			return nil, nil
		}
		return nil, err
	}
	return chunks, nil
}

func (s *ChunkStore) find(ctx context.Context, filter ragkb.ChunkFilter, withEmbedding bool) ([]*ragkb.Chunk, error) {
	var query strings.Builder
	var args []any

	query.WriteString("SELECT " + chunkColumns + " FROM chunks WHERE 1=1")
	appendChunkFilter(&query, &args, filter)
	query.WriteString(" ORDER BY document_id ASC, chunk_index ASC")
	appendPagination(&query, &args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*ragkb.Chunk
	for rows.Next() {
		c, err := scanChunk(rows, withEmbedding)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Delete removes chunks by ID.
func (s *ChunkStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.deleteWhere(ctx, "delete", "id IN ("+placeholders+")", args...)
	return err
}

// DeleteByDocument removes every chunk of a document.
func (s *ChunkStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	return s.deleteWhere(ctx, "delete_by_document", "document_id = ?", documentID)
}

// DeleteBySourceURL removes every chunk from a source URL.
func (s *ChunkStore) DeleteBySourceURL(ctx context.Context, sourceURL string) (int, error) {
	return s.deleteWhere(ctx, "delete_by_source_url", "source_url = ?", sourceURL)
}

// Reset deletes every chunk.
func (s *ChunkStore) Reset(ctx context.Context) error {
	_, err := s.deleteWhere(ctx, "reset", "1=1")
	return err
}

func (s *ChunkStore) deleteWhere(ctx context.Context, op, where string, args ...any) (int, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE "+where, args...)
	if err != nil {
		tx.Rollback()
		if s.recovered(ctx, op, err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 || where == "1=1" {
		if err := bumpVersion(ctx, tx); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	if err != nil {
		if s.recovered(ctx, "count", err) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// Stats returns chunk counts by source type and the number of documents.
// A document only ever holds chunks of one source type, so per-type
// document counts add up.
func (s *ChunkStore) Stats(ctx context.Context) (*ragkb.IndexStats, error) {
	stats, err := s.stats(ctx)
	if s.recovered(ctx, "stats", err) {
		return &ragkb.IndexStats{BySourceType: make(map[ragkb.SourceType]int)}, nil
	}
	return stats, err
}

func (s *ChunkStore) stats(ctx context.Context) (*ragkb.IndexStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT source_type, COUNT(*), COUNT(DISTINCT document_id) FROM chunks GROUP BY source_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &ragkb.IndexStats{BySourceType: make(map[ragkb.SourceType]int)}
	for rows.Next() {
		var st ragkb.SourceType
		var chunks, documents int
		if err := rows.Scan(&st, &chunks, &documents); err != nil {
			return nil, err
		}
		stats.BySourceType[st] = chunks
		stats.TotalChunks += chunks
		stats.Documents += documents
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

// Version returns the mutation counter.
func (s *ChunkStore) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = 'version'").Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		if s.recovered(ctx, "version", err) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

func bumpVersion(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES ('version', 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1
	`)
	if err != nil {
		return fmt.Errorf("failed to bump index version: %w", err)
	}
	return nil
}

func appendChunkFilter(query *strings.Builder, args *[]any, f ragkb.ChunkFilter) {
	add := func(column string, value any) {
		query.WriteString(" AND " + column + " = ?")
		*args = append(*args, value)
	}
	if f.ID != nil {
		add("id", *f.ID)
	}
	if f.DocumentID != nil {
		add("document_id", *f.DocumentID)
	}
	if f.SourceURL != nil {
		add("source_url", *f.SourceURL)
	}
	if f.SourceType != nil {
		add("source_type", string(*f.SourceType))
	}
	if f.Domain != nil {
		add("domain", *f.Domain)
	}
	if f.Difficulty != nil {
		add("difficulty", *f.Difficulty)
	}
	if f.Language != nil {
		add("language", *f.Language)
	}
}

func scanChunk(s scanner, withEmbedding bool) (*ragkb.Chunk, error) {
	var c ragkb.Chunk
	var embedding []byte
	var processedAt string
	var publishedAt sql.NullString
	var sourceFields, enrichment, extra string

	if err := s.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.TotalChunks, &c.Content, &embedding, &c.TokenCount,
		&c.SourceURL, &c.SourceType, &c.Domain, &c.ContentHash, &c.CommitHash, &c.Language, &c.HasCodeExample,
		&processedAt, &publishedAt, &sourceFields, &enrichment, &extra); err != nil {
		return nil, err
	}

	var err error
	if withEmbedding {
		if c.Embedding, err = decodeVector(embedding); err != nil {
			return nil, err
		}
	}
	if c.ProcessedAt, err = parseRFC3339(processedAt, "processed_at"); err != nil {
		return nil, err
	}
	if c.PublishedAt, err = parseNullTime(publishedAt, "published_at"); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sourceFields), &c.Source); err != nil {
		return nil, fmt.Errorf("failed to decode source fields: %w", err)
	}
	if err := json.Unmarshal([]byte(enrichment), &c.Enrichment); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment: %w", err)
	}
	if extra != "{}" && extra != "" {
		if err := json.Unmarshal([]byte(extra), &c.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extra: %w", err)
		}
	}
	return &c, nil
}
