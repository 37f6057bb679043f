package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fwojciec/ragkb"
)

var _ ragkb.Enricher = (*Enricher)(nil)

// enrichSampleSize is how many characters of a chunk the model sees.
const enrichSampleSize = 1000

// Enricher extracts descriptive metadata from chunk text with a model,
// falling back to ragkb.HeuristicEnrichment.
type Enricher struct {
	gen    ragkb.Generator
	logger *slog.Logger
}

// NewEnricher returns an Enricher using gen.
func NewEnricher(gen ragkb.Generator, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Enricher{gen: gen, logger: logger}
}

type enrichmentJSON struct {
	Topics               []string `json:"topics"`
	Keywords             []string `json:"keywords"`
	Summary              string   `json:"summary"`
	Concepts             []string `json:"concepts"`
	Difficulty           string   `json:"difficulty"`
	ProgrammingLanguages []string `json:"programming_languages"`
	Frameworks           []string `json:"frameworks"`
}

// Enrich returns model metadata for text, or the heuristic fallback with the
// reason the model output was not used.
func (e *Enricher) Enrich(ctx context.Context, text string) ragkb.EnrichResult {
	sample := text
	if r := []rune(sample); len(r) > enrichSampleSize {
		sample = string(r[:enrichSampleSize])
	}

	out, err := e.gen.Generate(ctx, ragkb.GenerateRequest{
		Prompt:      BuildEnrichmentPrompt(sample),
		Temperature: 0.3,
		MaxTokens:   300,
		JSON:        true,
	})
	if err != nil {
		return e.fallback(text, fmt.Sprintf("generate: %v", err))
	}

	var parsed enrichmentJSON
	if err := DecodeJSON(out, &parsed); err != nil {
		return e.fallback(text, err.Error())
	}

	return ragkb.EnrichResult{
		Enrichment: ragkb.Enrichment{
			Topics:               nonNil(parsed.Topics),
			Keywords:             nonNil(parsed.Keywords),
			Summary:              strings.TrimSpace(parsed.Summary),
			Concepts:             nonNil(parsed.Concepts),
			Difficulty:           normalizeDifficulty(parsed.Difficulty),
			ProgrammingLanguages: nonNil(parsed.ProgrammingLanguages),
			Frameworks:           nonNil(parsed.Frameworks),
		},
		Source: ragkb.EnrichedByModel,
	}
}

func (e *Enricher) fallback(text, reason string) ragkb.EnrichResult {
	e.logger.Warn("metadata enrichment failed, using heuristics", "reason", reason)
	return ragkb.EnrichResult{
		Enrichment: ragkb.HeuristicEnrichment(text),
		Source:     ragkb.EnrichFallback,
		Reason:     reason,
	}
}

func normalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "beginner", "intermediate", "advanced":
		return d
	}
	return "unknown"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// BuildEnrichmentPrompt returns the metadata extraction prompt for a content
// sample.
func BuildEnrichmentPrompt(sample string) string {
	return `Extract metadata from this technical content. Use real, specific terms from the content, never placeholders.

CONTENT:
` + sample + `

Extract:
1. topics (3-5): main subjects discussed
2. keywords (5-8): important technical terms found in the text
3. summary: one sentence, at most 20 words
4. concepts (3-5): technical concepts mentioned
5. difficulty: beginner, intermediate or advanced
6. programming_languages: languages mentioned
7. frameworks: frameworks mentioned

Use [] when nothing applies. Return only this JSON object:
{
    "topics": [],
    "keywords": [],
    "summary": "",
    "concepts": [],
    "difficulty": "beginner",
    "programming_languages": [],
    "frameworks": []
}`
}
