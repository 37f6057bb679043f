package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.QueryExpander = (*Expander)(nil)

// Expansion defaults.
const (
	DefaultMaxExpansionTerms = 10
	DefaultExpansionTimeout  = 10 * time.Second

	// Queries longer than this are used as is.
	maxExpandableWords = 15
)

// Expander adds related technical terms to short queries.
type Expander struct {
	gen      ragkb.Generator
	logger   *slog.Logger
	MaxTerms int
	Timeout  time.Duration
}

// NewExpander returns an Expander using gen.
func NewExpander(gen ragkb.Generator, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Expander{
		gen:      gen,
		logger:   logger,
		MaxTerms: DefaultMaxExpansionTerms,
		Timeout:  DefaultExpansionTimeout,
	}
}

// Expand returns query with related terms appended, or query unchanged when
// expansion is skipped or fails.
func (e *Expander) Expand(ctx context.Context, query string) string {
	words := len(strings.Fields(query))
	if words == 0 || words > maxExpandableWords {
		return query
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	out, err := e.gen.Generate(ctx, ragkb.GenerateRequest{
		Prompt:      BuildExpansionPrompt(query, e.MaxTerms),
		Temperature: 0.3,
		MaxTokens:   50,
	})
	if err != nil {
		e.logger.Warn("query expansion failed, using original query", "err", err)
		return query
	}

	expanded := strings.Join(strings.Fields(StripCodeFence(out)), " ")
	expanded = strings.Trim(expanded, `"'`)
	if expanded == "" || len(strings.Fields(expanded)) > words+e.MaxTerms+5 {
		e.logger.Debug("query expansion rejected", "query", query, "output", out)
		return query
	}
	if !strings.Contains(strings.ToLower(expanded), strings.ToLower(query)) {
		expanded = query + " " + expanded
	}
	return expanded
}

// BuildExpansionPrompt returns the instruction sent to the model.
func BuildExpansionPrompt(query string, maxTerms int) string {
	return fmt.Sprintf(`Expand this search query with related technical terms and synonyms.
Keep it concise (max %d additional words).
Focus on technical keywords that would appear in documentation.

Original query: %s

Expanded query (add related terms only, keep original meaning):`, maxTerms, query)
}
