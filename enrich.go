package ragkb

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

// Enrichment is descriptive metadata attached to a chunk.
type Enrichment struct {
	Topics               []string `json:"topics"`
	Keywords             []string `json:"keywords"`
	Summary              string   `json:"summary"`
	Concepts             []string `json:"concepts"`
	Difficulty           string   `json:"difficulty"`
	ProgrammingLanguages []string `json:"programmingLanguages"`
	Frameworks           []string `json:"frameworks"`
}

// EnrichSource records whether metadata came from the model or the fallback.
type EnrichSource string

// Enrichment sources.
const (
	EnrichedByModel EnrichSource = "enriched"
	EnrichFallback  EnrichSource = "fallback"
)

// EnrichResult is the outcome of enriching a chunk.
type EnrichResult struct {
	Enrichment Enrichment
	Source     EnrichSource
	Reason     string
}

// Enricher derives descriptive metadata from chunk text.
// Enrich never fails; on any trouble it returns the heuristic fallback.
type Enricher interface {
	Enrich(ctx context.Context, text string) EnrichResult
}

var (
	techTerms = []string{
		"python", "javascript", "typescript", "java", "rust", "go", "golang",
		"fastapi", "django", "flask", "react", "vue", "angular", "express",
		"docker", "kubernetes", "redis", "postgresql", "mongodb", "sql",
		"api", "rest", "graphql", "websocket", "async", "http",
	}
	programmingLanguages = []string{"python", "javascript", "typescript", "java", "rust", "go", "c++", "ruby"}
	frameworks           = []string{"fastapi", "django", "flask", "vue", "react", "angular", "express"}
	wordPattern          = regexp.MustCompile(`[a-z][a-z0-9+#]*`)
)

const maxHeuristicKeywords = 8

// HeuristicEnrichment derives metadata from text without a model.
// Known technology terms come first, then the most frequent longer words.
func HeuristicEnrichment(text string) Enrichment {
	lower := strings.ToLower(text)
	words := wordPattern.FindAllString(lower, -1)

	present := make(map[string]bool, len(words))
	freq := make(map[string]int)
	for _, w := range words {
		present[w] = true
		if len(w) > 4 {
			freq[w]++
		}
	}

	var keywords []string
	seen := make(map[string]bool)
	for _, term := range techTerms {
		if present[term] && !seen[term] {
			keywords = append(keywords, term)
			seen[term] = true
		}
	}

	frequent := make([]string, 0, len(freq))
	for w := range freq {
		if !seen[w] {
			frequent = append(frequent, w)
		}
	}
	sort.Slice(frequent, func(i, j int) bool {
		if freq[frequent[i]] != freq[frequent[j]] {
			return freq[frequent[i]] > freq[frequent[j]]
		}
		return frequent[i] < frequent[j]
	})
	keywords = append(keywords, frequent...)
	if len(keywords) > maxHeuristicKeywords {
		keywords = keywords[:maxHeuristicKeywords]
	}

	var langs []string
	for _, l := range programmingLanguages {
		if present[l] {
			langs = append(langs, l)
		}
	}
	var fws []string
	for _, f := range frameworks {
		if present[f] {
			fws = append(fws, f)
		}
	}

	summary := strings.TrimSpace(text)
	if r := []rune(summary); len(r) > 100 {
		summary = string(r[:100])
	}

	return Enrichment{
		Topics:               []string{},
		Keywords:             keywords,
		Summary:              summary,
		Concepts:             []string{},
		Difficulty:           "unknown",
		ProgrammingLanguages: langs,
		Frameworks:           fws,
	}
}
