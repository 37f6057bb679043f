package ragkb

import "context"

// GenerateRequest is a single-turn text generation request.
type GenerateRequest struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int

	// JSON asks the model for a JSON object response.
	JSON bool
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// QueryExpander augments a query with related terms.
// Expand never fails; on trouble it returns the query unchanged.
type QueryExpander interface {
	Expand(ctx context.Context, query string) string
}

// Reranker scores (query, document) pairs jointly. Scores are raw logits,
// one per document, in input order. Higher is more relevant.
type Reranker interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// SearchStrategy is a plan for discovering sources about a topic.
type SearchStrategy struct {
	Queries  []string `json:"search_queries"`
	Topics   []string `json:"topics"`
	Keywords []string `json:"keywords"`

	// Fallback is set when the strategy was produced without the model.
	Fallback bool `json:"-"`
}

// QueryPlanner turns a free-text learning goal into web search queries.
// Plan never fails; on trouble it returns a fallback strategy.
type QueryPlanner interface {
	Plan(ctx context.Context, prompt string) SearchStrategy
}

// WebResult is a single web search hit.
type WebResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Age         string `json:"age,omitempty"`
}

// WebSearcher queries a web search engine.
type WebSearcher interface {
	Search(ctx context.Context, query string, count int) ([]WebResult, error)
}
