// Package keyword provides BM25 lexical search over indexed chunks.
package keyword

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/fwojciec/ragkb"
)

// BM25 parameters.
const (
	K1 = 1.2
	B  = 0.75
)

// Index is an immutable BM25 index over a snapshot of chunks.
type Index struct {
	docs  []document
	df    map[string]int
	avgdl float64
}

type document struct {
	chunk  *ragkb.Chunk
	tf     map[string]int
	length int
}

// NewIndex builds an index over chunks.
func NewIndex(chunks []*ragkb.Chunk) *Index {
	idx := &Index{
		docs: make([]document, 0, len(chunks)),
		df:   make(map[string]int),
	}
	total := 0
	for _, c := range chunks {
		tokens := Tokenize(c.Content)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for tok := range tf {
			idx.df[tok]++
		}
		idx.docs = append(idx.docs, document{chunk: c, tf: tf, length: len(tokens)})
		total += len(tokens)
	}
	if len(idx.docs) > 0 {
		idx.avgdl = float64(total) / float64(len(idx.docs))
	}
	return idx
}

// Len returns the number of indexed chunks.
func (idx *Index) Len() int { return len(idx.docs) }

// IDF returns the inverse document frequency of a token.
func (idx *Index) IDF(token string) float64 {
	n := float64(len(idx.docs))
	df := float64(idx.df[token])
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Search returns up to k chunks with a positive score for query, best first.
// Chunks rejected by match are not scored. A nil match accepts all chunks.
func (idx *Index) Search(query string, k int, match func(*ragkb.Chunk) bool) []ragkb.KeywordMatch {
	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.docs) == 0 || k <= 0 {
		return nil
	}

	var matches []ragkb.KeywordMatch
	for _, d := range idx.docs {
		if match != nil && !match(d.chunk) {
			continue
		}
		if s := idx.score(d, terms); s > 0 {
			matches = append(matches, ragkb.KeywordMatch{Chunk: d.chunk, Score: s})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func (idx *Index) score(d document, terms []string) float64 {
	var s float64
	norm := 1.0
	if idx.avgdl > 0 {
		norm = 1 - B + B*float64(d.length)/idx.avgdl
	}
	for _, term := range terms {
		f := float64(d.tf[term])
		if f == 0 {
			continue
		}
		s += idx.IDF(term) * f * (K1 + 1) / (f + K1*norm)
	}
	return s
}

// Tokenize lowercases text, splits on whitespace and trims punctuation from
// each token. Empty tokens are dropped.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
