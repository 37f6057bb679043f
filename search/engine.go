// Package search implements semantic and hybrid retrieval with optional
// query expansion and reranking.
package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/fwojciec/ragkb"
	"golang.org/x/sync/errgroup"
)

// Compile-time interface verification.
var _ ragkb.SearchService = (*Engine)(nil)

// Degraded stage names reported in SearchResponse.Degraded.
const (
	DegradedExpansion = "expansion"
	DegradedSemantic  = "semantic"
	DegradedKeyword   = "keyword"
	DegradedRerank    = "rerank"
)

// Engine answers queries over a vector index and an optional keyword index.
type Engine struct {
	Index    ragkb.VectorIndex
	Keywords ragkb.KeywordIndex
	Embedder ragkb.Embedder

	// Optional collaborators.
	Expander ragkb.QueryExpander
	Reranker ragkb.Reranker

	Weights Weights
	K       int

	// MaxRerankCandidates caps how many candidates reach the reranker.
	// Zero means no cap.
	MaxRerankCandidates int

	Logger *slog.Logger
}

// NewEngine returns an Engine using the fusion parameters from cfg.
func NewEngine(cfg ragkb.SearchConfig, index ragkb.VectorIndex, keywords ragkb.KeywordIndex, embedder ragkb.Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := Weights{Semantic: cfg.SemanticWeight, Keyword: cfg.KeywordWeight}
	if w.Semantic == 0 && w.Keyword == 0 {
		w = DefaultWeights
	}
	return &Engine{
		Index:    index,
		Keywords: keywords,
		Embedder: embedder,
		Weights:  w,
		K:        cfg.RRFK,
		Logger:   logger,
	}
}

// Search runs the retrieval pipeline. Failing stages are skipped and listed
// in the response, and a blank query matches nothing.
func (e *Engine) Search(ctx context.Context, query string, opts ragkb.SearchOptions) (*ragkb.SearchResponse, error) {
	query = strings.TrimSpace(query)
	n := opts.NResults
	if n <= 0 {
		n = ragkb.DefaultNResults
	}
	rerank := opts.Rerank && e.Reranker != nil

	resp := &ragkb.SearchResponse{Query: query, Mode: ragkb.ModeSemantic, Results: []ragkb.SearchResult{}}
	if opts.Hybrid && e.Keywords != nil {
		resp.Mode = ragkb.ModeHybrid
	}
	if query == "" {
		return resp, nil
	}

	retrieval := query
	if opts.Expand && e.Expander != nil {
		if expanded := e.Expander.Expand(ctx, query); expanded != "" && expanded != query {
			retrieval = expanded
			resp.ExpandedQuery = expanded
			e.logger().Debug("query expanded", "query", query, "expanded", expanded)
		}
	}

	var candidates []ragkb.SearchResult
	if resp.Mode == ragkb.ModeHybrid {
		candidates = e.hybrid(ctx, retrieval, n, opts.Filter, rerank, resp)
	} else {
		candidates = e.semantic(ctx, retrieval, n, opts, rerank, resp)
	}
	if len(candidates) == 0 {
		return resp, nil
	}

	if rerank {
		candidates = e.rerank(ctx, query, candidates, n, resp)
	}
	rank(candidates)
	resp.Results = candidates
	return resp, nil
}

func (e *Engine) semantic(ctx context.Context, query string, n int, opts ragkb.SearchOptions, rerank bool, resp *ragkb.SearchResponse) []ragkb.SearchResult {
	k := n * 2
	if rerank {
		k = n * 4
	}
	matches, err := e.vectorSearch(ctx, query, k, opts.Filter)
	if err != nil {
		e.logger().Warn("semantic search failed", "err", err)
		resp.Degraded = append(resp.Degraded, DegradedSemantic)
		return nil
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = ragkb.DefaultThreshold
	}
	results := make([]ragkb.SearchResult, 0, len(matches))
	for _, m := range matches {
		if !rerank && m.Distance > threshold {
			continue
		}
		results = append(results, ragkb.SearchResult{
			Chunk: m.Chunk,
			Stage: ragkb.StageSemantic,
			Scores: ragkb.Scores{
				Distance:   ragkb.F64(m.Distance),
				Similarity: ragkb.F64(ragkb.DistanceToSimilarity(m.Distance)),
			},
		})
	}
	if !rerank && len(results) > n {
		results = results[:n]
	}
	return results
}

func (e *Engine) hybrid(ctx context.Context, query string, n int, filter ragkb.ChunkFilter, rerank bool, resp *ragkb.SearchResponse) []ragkb.SearchResult {
	k := n * 3

	var (
		semantic           []ragkb.VectorMatch
		keyword            []ragkb.KeywordMatch
		semErr, keywordErr error
	)
	// Both sides always run to completion; one failing must not cancel the other.
	var g errgroup.Group
	g.Go(func() error {
		semantic, semErr = e.vectorSearch(ctx, query, k, filter)
		return nil
	})
	g.Go(func() error {
		keyword, keywordErr = e.Keywords.Search(ctx, query, k, filter)
		return nil
	})
	_ = g.Wait()

	if semErr != nil {
		e.logger().Warn("semantic search failed, using keyword results only", "err", semErr)
		resp.Degraded = append(resp.Degraded, DegradedSemantic)
	}
	if keywordErr != nil {
		e.logger().Warn("keyword search failed, using semantic results only", "err", keywordErr)
		resp.Degraded = append(resp.Degraded, DegradedKeyword)
	}

	fused := FuseRRF(semantic, keyword, e.Weights, e.K)
	limit := n
	if rerank {
		limit = n * 2
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}
	return fused
}

func (e *Engine) vectorSearch(ctx context.Context, query string, k int, filter ragkb.ChunkFilter) ([]ragkb.VectorMatch, error) {
	vec, err := e.Embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, err
	}
	return e.Index.Query(ctx, vec, k, filter)
}

// rerank orders candidates by reranker logit against the original query and
// keeps the top n. On failure the incoming order is kept.
func (e *Engine) rerank(ctx context.Context, query string, candidates []ragkb.SearchResult, n int, resp *ragkb.SearchResponse) []ragkb.SearchResult {
	if e.MaxRerankCandidates > 0 && len(candidates) > e.MaxRerankCandidates {
		candidates = candidates[:e.MaxRerankCandidates]
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Chunk.Content
	}

	scores, err := e.Reranker.Score(ctx, query, docs)
	if err == nil && len(scores) != len(candidates) {
		err = ragkb.Errorf(ragkb.EINTERNAL, "reranker returned %d scores for %d documents", len(scores), len(candidates))
	}
	if err != nil {
		e.logger().Warn("reranking failed, keeping retrieval order", "err", err)
		resp.Degraded = append(resp.Degraded, DegradedRerank)
		if len(candidates) > n {
			candidates = candidates[:n]
		}
		return candidates
	}

	for i := range candidates {
		candidates[i].Stage = ragkb.StageReranked
		candidates[i].Scores.Rerank = ragkb.F64(scores[i])
		candidates[i].Scores.RerankProbability = ragkb.F64(Sigmoid(scores[i]))
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return *candidates[i].Scores.Rerank > *candidates[j].Scores.Rerank
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
