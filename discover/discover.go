// Package discover turns user input into registry entries: direct URLs are
// queued as given, free-text prompts go through query planning and web search.
package discover

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fwojciec/ragkb"
	"golang.org/x/time/rate"
)

// InputKind classifies user input.
type InputKind string

// Input kinds.
const (
	InputURLs   InputKind = "urls"
	InputPrompt InputKind = "prompt"
)

// maxMetadataInput bounds how much of the original input is kept on a row.
const maxMetadataInput = 200

// InputAnalysis is the result of classifying user input.
type InputAnalysis struct {
	Kind InputKind
	URLs []string
	// Text is the prompt, or what remains of the input once URLs are removed.
	Text string
}

// Analyze classifies input. Any well-formed URL makes the input a URL list.
func Analyze(input string) InputAnalysis {
	var urls []string
	for _, u := range ragkb.ExtractURLs(input) {
		if ragkb.IsValidURL(u) {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return InputAnalysis{Kind: InputPrompt, Text: strings.TrimSpace(input)}
	}

	rest := input
	for _, u := range urls {
		rest = strings.ReplaceAll(rest, u, "")
	}
	return InputAnalysis{Kind: InputURLs, URLs: urls, Text: strings.TrimSpace(rest)}
}

// AddReport summarizes one AddSources call.
type AddReport struct {
	Kind       InputKind `json:"inputType"`
	Discovered int       `json:"urlsDiscovered"`
	Added      int       `json:"urlsAdded"`
	Skipped    int       `json:"urlsSkipped"`
	URLs       []string  `json:"urls"`
}

// Orchestrator is the ingestion front door.
type Orchestrator struct {
	Registry ragkb.URLRegistry
	Planner  ragkb.QueryPlanner

	// Search finds URLs for prompts. When nil, prompts are rejected.
	Search ragkb.WebSearcher

	// Limiter paces web search requests. May be nil.
	Limiter *rate.Limiter

	UserPriority       int
	DiscoveredPriority int

	Logger *slog.Logger
}

// AddSources discovers URLs for input and queues the new ones.
func (o *Orchestrator) AddSources(ctx context.Context, input string) (*AddReport, error) {
	analysis, urls, err := o.discover(ctx, input)
	if err != nil {
		return nil, err
	}

	report := &AddReport{Kind: analysis.Kind, Discovered: len(urls), URLs: urls}

	from, priority := ragkb.FromUserInput, o.UserPriority
	if analysis.Kind == InputPrompt {
		from, priority = ragkb.FromWebSearch, o.DiscoveredPriority
	}
	snippet := input
	if r := []rune(snippet); len(r) > maxMetadataInput {
		snippet = string(r[:maxMetadataInput])
	}

	for _, raw := range urls {
		normalized, err := ragkb.NormalizeURL(raw)
		if err != nil {
			o.logger().Debug("skipping malformed url", "url", raw, "err", err)
			report.Skipped++
			continue
		}
		hash := ragkb.HashURL(normalized)

		exists, err := o.Registry.Exists(ctx, hash)
		if err != nil {
			return nil, err
		}
		if exists {
			o.logger().Debug("url already registered", "url", normalized)
			report.Skipped++
			continue
		}

		sourceType := ragkb.DetectSourceType(normalized)
		_, inserted, err := o.Registry.Insert(ctx, &ragkb.DiscoveredURL{
			URL:              normalized,
			URLHash:          hash,
			SourceType:       sourceType,
			Status:           ragkb.StatusPending,
			DiscoveredFrom:   from,
			RefreshFrequency: ragkb.DefaultRefreshFrequency(sourceType),
			Priority:         priority,
			Metadata:         map[string]string{"original_input": snippet},
		})
		if err != nil {
			return nil, err
		}
		if inserted {
			report.Added++
		} else {
			report.Skipped++
		}
	}

	o.logger().Info("sources added",
		"input", analysis.Kind,
		"discovered", report.Discovered,
		"added", report.Added,
		"skipped", report.Skipped,
	)
	return report, nil
}

// Preview discovers URLs for input without touching the registry.
func (o *Orchestrator) Preview(ctx context.Context, input string) (InputKind, []string, error) {
	analysis, urls, err := o.discover(ctx, input)
	if err != nil {
		return "", nil, err
	}
	return analysis.Kind, urls, nil
}

func (o *Orchestrator) discover(ctx context.Context, input string) (InputAnalysis, []string, error) {
	analysis := Analyze(input)
	if analysis.Kind == InputURLs {
		o.logger().Info("processing direct urls", "count", len(analysis.URLs))
		return analysis, analysis.URLs, nil
	}
	if analysis.Text == "" {
		return analysis, nil, ragkb.Errorf(ragkb.EINVALID, "empty prompt")
	}
	if o.Search == nil || o.Planner == nil {
		return analysis, nil, ragkb.Errorf(ragkb.EUNAVAILABLE, "web search is not configured")
	}

	strategy := o.Planner.Plan(ctx, analysis.Text)
	perQuery := ResultsPerQuery(len(strategy.Queries))
	o.logger().Info("searching the web",
		"queries", len(strategy.Queries),
		"perQuery", perQuery,
		"fallback", strategy.Fallback,
	)

	results, err := o.search(ctx, strategy.Queries, perQuery)
	if err != nil {
		return analysis, nil, err
	}
	urls := ExtractURLs(results)
	o.logger().Info("urls discovered", "results", len(results), "urls", len(urls))
	return analysis, urls, nil
}

// search runs every query in order. A failed query is logged and skipped.
func (o *Orchestrator) search(ctx context.Context, queries []string, count int) ([]ragkb.WebResult, error) {
	var all []ragkb.WebResult
	for _, q := range queries {
		if o.Limiter != nil {
			if err := o.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		results, err := o.Search.Search(ctx, q, count)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger().Warn("web search failed", "query", q, "err", err)
			continue
		}
		all = append(all, results...)
	}
	return all, nil
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}
