package mock

import (
	"context"

	"github.com/fwojciec/ragkb"
)

var (
	_ ragkb.Embedder      = (*Embedder)(nil)
	_ ragkb.Enricher      = (*Enricher)(nil)
	_ ragkb.Generator     = (*Generator)(nil)
	_ ragkb.QueryExpander = (*QueryExpander)(nil)
	_ ragkb.Reranker      = (*Reranker)(nil)
	_ ragkb.QueryPlanner  = (*QueryPlanner)(nil)
	_ ragkb.TokenCounter  = (*TokenCounter)(nil)
)

// Embedder is a mock implementation of ragkb.Embedder.
type Embedder struct {
	EmbedFn       func(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingleFn func(ctx context.Context, text string) ([]float32, error)
	DimensionFn   func() int
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.EmbedFn(ctx, texts)
}

func (e *Embedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return e.EmbedSingleFn(ctx, text)
}

func (e *Embedder) Dimension() int {
	return e.DimensionFn()
}

// Enricher is a mock implementation of ragkb.Enricher.
type Enricher struct {
	EnrichFn func(ctx context.Context, text string) ragkb.EnrichResult
}

func (e *Enricher) Enrich(ctx context.Context, text string) ragkb.EnrichResult {
	return e.EnrichFn(ctx, text)
}

// Generator is a mock implementation of ragkb.Generator.
type Generator struct {
	GenerateFn func(ctx context.Context, req ragkb.GenerateRequest) (string, error)
}

func (g *Generator) Generate(ctx context.Context, req ragkb.GenerateRequest) (string, error) {
	return g.GenerateFn(ctx, req)
}

// QueryExpander is a mock implementation of ragkb.QueryExpander.
type QueryExpander struct {
	ExpandFn func(ctx context.Context, query string) string
}

func (q *QueryExpander) Expand(ctx context.Context, query string) string {
	return q.ExpandFn(ctx, query)
}

// Reranker is a mock implementation of ragkb.Reranker.
type Reranker struct {
	ScoreFn func(ctx context.Context, query string, docs []string) ([]float64, error)
}

func (r *Reranker) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	return r.ScoreFn(ctx, query, docs)
}

// QueryPlanner is a mock implementation of ragkb.QueryPlanner.
type QueryPlanner struct {
	PlanFn func(ctx context.Context, prompt string) ragkb.SearchStrategy
}

func (p *QueryPlanner) Plan(ctx context.Context, prompt string) ragkb.SearchStrategy {
	return p.PlanFn(ctx, prompt)
}

// TokenCounter is a mock implementation of ragkb.TokenCounter.
type TokenCounter struct {
	CountTokensFn func(ctx context.Context, text string) (int, error)
}

func (t *TokenCounter) CountTokens(ctx context.Context, text string) (int, error) {
	return t.CountTokensFn(ctx, text)
}
