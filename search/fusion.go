package search

import (
	"math"
	"sort"

	"github.com/fwojciec/ragkb"
)

// Fusion defaults.
const (
	DefaultRRFK           = 60
	DefaultSemanticWeight = 0.7
	DefaultKeywordWeight  = 0.3
)

// Weights balance the two ranked lists in reciprocal rank fusion.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights favour semantic matches.
var DefaultWeights = Weights{Semantic: DefaultSemanticWeight, Keyword: DefaultKeywordWeight}

// FuseRRF merges semantic and keyword hits with weighted reciprocal rank
// fusion. A chunk at rank r (from 1) in a list contributes weight/(k+r).
// Chunks are identified by Chunk.Key. Ties keep first-seen order, semantic
// hits before keyword hits.
func FuseRRF(semantic []ragkb.VectorMatch, keyword []ragkb.KeywordMatch, w Weights, k int) []ragkb.SearchResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	var fused []ragkb.SearchResult
	pos := make(map[string]int)
	entry := func(c *ragkb.Chunk) *ragkb.SearchResult {
		key := c.Key()
		if i, ok := pos[key]; ok {
			return &fused[i]
		}
		pos[key] = len(fused)
		fused = append(fused, ragkb.SearchResult{Chunk: c, Stage: ragkb.StageFused, Scores: ragkb.Scores{Fused: ragkb.F64(0)}})
		return &fused[len(fused)-1]
	}

	for i, m := range semantic {
		r := entry(m.Chunk)
		*r.Scores.Fused += w.Semantic / float64(k+i+1)
		r.Scores.Distance = ragkb.F64(m.Distance)
		r.Scores.Similarity = ragkb.F64(ragkb.DistanceToSimilarity(m.Distance))
	}
	for i, m := range keyword {
		r := entry(m.Chunk)
		*r.Scores.Fused += w.Keyword / float64(k+i+1)
		r.Scores.Keyword = ragkb.F64(m.Score)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return *fused[i].Scores.Fused > *fused[j].Scores.Fused
	})
	rank(fused)
	return fused
}

// Sigmoid maps a reranker logit to (0,1) for display.
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func rank(results []ragkb.SearchResult) {
	for i := range results {
		results[i].Rank = i + 1
	}
}
