package ragkb

import "context"

// Default search parameters.
const (
	DefaultNResults  = 5
	DefaultThreshold = 1.5
)

// SearchOptions configures a search.
type SearchOptions struct {
	NResults int         `json:"nResults"`
	Filter   ChunkFilter `json:"filter"`
	Hybrid   bool        `json:"hybrid"`
	Rerank   bool        `json:"rerank"`
	Expand   bool        `json:"expand"`

	// Threshold is the maximum cosine distance kept on the semantic-only
	// path when reranking is off. Zero means DefaultThreshold.
	Threshold float64 `json:"threshold"`
}

// SearchMode names the retrieval path a search took.
type SearchMode string

// Search modes.
const (
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// ScoreStage names the pipeline stage that produced a result's final ordering.
type ScoreStage string

// Score stages.
const (
	StageSemantic ScoreStage = "semantic"
	StageKeyword  ScoreStage = "keyword"
	StageFused    ScoreStage = "fused"
	StageReranked ScoreStage = "reranked"
)

// Scores records every score a result accumulated through the pipeline.
// Nil fields were not computed.
type Scores struct {
	Distance          *float64 `json:"distance,omitempty"`
	Similarity        *float64 `json:"similarity,omitempty"`
	Keyword           *float64 `json:"keyword,omitempty"`
	Fused             *float64 `json:"fused,omitempty"`
	Rerank            *float64 `json:"rerank,omitempty"`
	RerankProbability *float64 `json:"rerankProbability,omitempty"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	Chunk  *Chunk     `json:"chunk"`
	Rank   int        `json:"rank"`
	Stage  ScoreStage `json:"stage"`
	Scores Scores     `json:"scores"`
}

// Score returns the score of the stage that produced the final ordering.
func (r SearchResult) Score() float64 {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	switch r.Stage {
	case StageReranked:
		return deref(r.Scores.Rerank)
	case StageFused:
		return deref(r.Scores.Fused)
	case StageKeyword:
		return deref(r.Scores.Keyword)
	default:
		return deref(r.Scores.Similarity)
	}
}

// SearchResponse is the outcome of a search.
type SearchResponse struct {
	Query         string         `json:"query"`
	ExpandedQuery string         `json:"expandedQuery,omitempty"`
	Mode          SearchMode     `json:"mode"`
	Results       []SearchResult `json:"results"`

	// Degraded lists pipeline stages that failed and were skipped.
	Degraded []string `json:"degraded,omitempty"`
}

// SearchService answers queries over the indexed corpus.
type SearchService interface {
	// Search only fails on malformed input; backend trouble degrades to
	// fewer or empty results recorded in SearchResponse.Degraded.
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResponse, error)
}

// F64 returns a pointer to v.
func F64(v float64) *float64 { return &v }
