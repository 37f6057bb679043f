package llm

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/ragkb"
	"golang.org/x/sync/errgroup"
)

var _ ragkb.Reranker = (*Reranker)(nil)

// DefaultRerankConcurrency bounds parallel scoring calls.
const DefaultRerankConcurrency = 4

// DefaultRerankCacheSize bounds the remembered pair scores.
const DefaultRerankCacheSize = 4096

// rerankDocChars truncates documents sent for scoring.
const rerankDocChars = 2000

// Reranker scores (query, document) pairs jointly with a generative model
// acting as a cross-encoder. Scores are logits in [-10, 10].
//
// A sampled model may answer the same pair differently between calls even
// at temperature 0, so scores are remembered per (query, document) content
// hash and a repeated pair always gets its first score back.
type Reranker struct {
	gen         ragkb.Generator
	Concurrency int

	// CacheSize bounds remembered scores. The cache is cleared when full.
	CacheSize int

	mu   sync.Mutex
	memo map[uint64]float64
}

// NewReranker returns a Reranker using gen.
func NewReranker(gen ragkb.Generator) *Reranker {
	return &Reranker{gen: gen, Concurrency: DefaultRerankConcurrency, CacheSize: DefaultRerankCacheSize}
}

// Score returns one logit per document in input order. Any failed pair
// fails the whole call.
func (r *Reranker) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}
	for i, doc := range docs {
		g.Go(func() error {
			s, err := r.score(ctx, query, doc)
			if err != nil {
				return fmt.Errorf("score document %d: %w", i, err)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (r *Reranker) score(ctx context.Context, query, doc string) (float64, error) {
	if rr := []rune(doc); len(rr) > rerankDocChars {
		doc = string(rr[:rerankDocChars])
	}
	key := pairKey(query, doc)
	if s, ok := r.cached(key); ok {
		return s, nil
	}
	s, err := r.generate(ctx, query, doc)
	if err != nil {
		return 0, err
	}
	return r.remember(key, s), nil
}

func pairKey(query, doc string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(query)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(doc)
	return d.Sum64()
}

func (r *Reranker) cached(key uint64) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.memo[key]
	return s, ok
}

// remember stores s unless a concurrent call already did, and returns the
// stored score.
func (r *Reranker) remember(key uint64, s float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.memo[key]; ok {
		return prev
	}
	if r.CacheSize <= 0 {
		return s
	}
	if r.memo == nil || len(r.memo) >= r.CacheSize {
		r.memo = make(map[uint64]float64)
	}
	r.memo[key] = s
	return s
}

func (r *Reranker) generate(ctx context.Context, query, doc string) (float64, error) {
	out, err := r.gen.Generate(ctx, ragkb.GenerateRequest{
		System:      rerankSystemPrompt,
		Prompt:      BuildRerankPrompt(query, doc),
		Temperature: 0,
		MaxTokens:   20,
		JSON:        true,
	})
	if err != nil {
		return 0, err
	}
	var v struct {
		Score *float64 `json:"score"`
	}
	if err := DecodeJSON(out, &v); err != nil {
		return 0, err
	}
	if v.Score == nil || math.IsNaN(*v.Score) {
		return 0, fmt.Errorf("response has no score")
	}
	return math.Max(-10, math.Min(10, *v.Score)), nil
}

const rerankSystemPrompt = `You judge how relevant a document is to a search query.
Answer with a JSON object {"score": <number>} where the number is a relevance logit
between -10 (irrelevant) and 10 (directly answers the query).`

// BuildRerankPrompt pairs a query with one document.
func BuildRerankPrompt(query, doc string) string {
	return fmt.Sprintf("Query: %s\n\nDocument:\n%s\n\nRelevance JSON:", query, doc)
}
