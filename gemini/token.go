package gemini

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/ragkb"
	"google.golang.org/genai"
	"google.golang.org/genai/tokenizer"
)

var _ ragkb.TokenCounter = (*TokenCounter)(nil)

// DefaultTokenizerModel is a model the local tokenizer supports.
const DefaultTokenizerModel = "gemini-2.0-flash"

// DefaultCountCacheSize bounds how many counts a TokenCounter remembers.
const DefaultCountCacheSize = 4096

// TokenCounter sizes chunks with the Gemini tokenizer, running locally
// without an API key. Counts are memoized by content hash since the chunker
// measures the same pieces repeatedly while merging. It is safe for
// concurrent use.
type TokenCounter struct {
	// CacheSize caps the memo; the memo is dropped wholesale when full.
	// Zero disables caching.
	CacheSize int

	mu    sync.Mutex
	tok   *tokenizer.LocalTokenizer
	memo  map[uint64]int
	hits  int
	calls int
}

// NewTokenCounter loads the tokenizer for model, or DefaultTokenizerModel
// when model is empty.
func NewTokenCounter(model string) (*TokenCounter, error) {
	if model == "" {
		model = DefaultTokenizerModel
	}
	tok, err := tokenizer.NewLocalTokenizer(model)
	if err != nil {
		return nil, ragkb.Errorf(ragkb.EINVALID, "gemini tokenizer for %s: %v", model, err)
	}
	return &TokenCounter{
		CacheSize: DefaultCountCacheSize,
		tok:       tok,
		memo:      make(map[uint64]int),
	}, nil
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(_ context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	key := xxhash.Sum64String(text)

	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.calls++
	if n, ok := tc.memo[key]; ok {
		tc.hits++
		return n, nil
	}

	res, err := tc.tok.CountTokens([]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	n := int(res.TotalTokens)

	if tc.CacheSize > 0 {
		if len(tc.memo) >= tc.CacheSize {
			clear(tc.memo)
		}
		tc.memo[key] = n
	}
	return n, nil
}

// Stats reports how many counts were requested and how many the memo served.
func (tc *TokenCounter) Stats() (calls, hits int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.calls, tc.hits
}
