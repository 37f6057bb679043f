package ragkb

import "context"

// ChunkFilter restricts which chunks an index operation considers.
// Nil pointers match everything.
type ChunkFilter struct {
	ID         *string     `json:"id,omitempty"`
	DocumentID *string     `json:"documentId,omitempty"`
	SourceURL  *string     `json:"sourceUrl,omitempty"`
	SourceType *SourceType `json:"sourceType,omitempty"`
	Domain     *string     `json:"domain,omitempty"`
	Difficulty *string     `json:"difficulty,omitempty"`
	Language   *string     `json:"language,omitempty"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Matches reports whether a chunk satisfies the filter's predicates.
// Offset and Limit are ignored.
func (f ChunkFilter) Matches(c *Chunk) bool {
	switch {
	case f.ID != nil && c.ID != *f.ID:
		return false
	case f.DocumentID != nil && c.DocumentID != *f.DocumentID:
		return false
	case f.SourceURL != nil && c.SourceURL != *f.SourceURL:
		return false
	case f.SourceType != nil && c.SourceType != *f.SourceType:
		return false
	case f.Domain != nil && c.Domain != *f.Domain:
		return false
	case f.Difficulty != nil && c.Enrichment.Difficulty != *f.Difficulty:
		return false
	case f.Language != nil && c.Language != *f.Language:
		return false
	}
	return true
}

// VectorMatch is a nearest-neighbour hit. Distance is cosine distance in [0,2].
type VectorMatch struct {
	Chunk    *Chunk
	Distance float64
}

// KeywordMatch is a lexical hit with its BM25 score.
type KeywordMatch struct {
	Chunk *Chunk
	Score float64
}

// IndexStats summarizes the vector index.
type IndexStats struct {
	TotalChunks  int                `json:"totalChunks"`
	Documents    int                `json:"documents"`
	BySourceType map[SourceType]int `json:"bySourceType"`
}

// VectorIndex stores chunks with embeddings and answers nearest-neighbour queries.
type VectorIndex interface {
	// Add inserts or replaces chunks by ID. Chunks must carry embeddings.
	Add(ctx context.Context, chunks []*Chunk) error

	// Query returns up to k chunks nearest to vec, ascending by distance.
	Query(ctx context.Context, vec []float32, k int, filter ChunkFilter) ([]VectorMatch, error)

	// ReplaceDocument stores chunks as the complete content of documentID and
	// removes its chunks past the new total, atomically. It returns how many
	// stale chunks were removed.
	ReplaceDocument(ctx context.Context, documentID string, chunks []*Chunk) (int, error)

	// Get returns chunks matching the filter ordered by document and chunk index.
	Get(ctx context.Context, filter ChunkFilter) ([]*Chunk, error)

	// Delete removes chunks by ID.
	Delete(ctx context.Context, ids []string) error

	// DeleteByDocument removes every chunk of a document and returns the count.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// DeleteBySourceURL removes every chunk from a source URL and returns the count.
	DeleteBySourceURL(ctx context.Context, sourceURL string) (int, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Stats returns counts by source type.
	Stats(ctx context.Context) (*IndexStats, error)

	// Reset deletes every chunk.
	Reset(ctx context.Context) error

	// Version returns a counter that changes whenever the index is mutated.
	Version(ctx context.Context) (int64, error)
}

// KeywordIndex answers lexical queries over the chunk corpus.
type KeywordIndex interface {
	Search(ctx context.Context, query string, k int, filter ChunkFilter) ([]KeywordMatch, error)
}
