package main

import (
	"fmt"
	"strings"

	"github.com/fwojciec/ragkb"
)

// snippetRunes bounds the content shown per result.
const snippetRunes = 300

// Run executes the search command.
func (c *SearchCmd) Run(deps *Dependencies) error {
	query := strings.TrimSpace(strings.Join(c.Query, " "))
	if query == "" {
		return ragkb.Errorf(ragkb.EINVALID, "search query required")
	}

	opts, err := c.options(deps.Config.Search)
	if err != nil {
		return err
	}

	resp, err := deps.Search.Search(deps.Ctx, query, opts)
	if err != nil {
		return err
	}

	if resp.ExpandedQuery != "" && resp.ExpandedQuery != query {
		fmt.Fprintf(deps.Stdout, "Expanded query: %s\n\n", resp.ExpandedQuery)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(deps.Stdout, "No results found.")
	}
	for _, r := range resp.Results {
		printResult(deps, r)
	}
	if len(resp.Degraded) > 0 {
		fmt.Fprintf(deps.Stderr, "warning: skipped %s\n", strings.Join(resp.Degraded, ", "))
	}
	return nil
}

// options merges flags over the configured defaults.
func (c *SearchCmd) options(cfg ragkb.SearchConfig) (ragkb.SearchOptions, error) {
	opts := ragkb.SearchOptions{
		NResults:  cfg.NResults,
		Hybrid:    cfg.Hybrid || c.Hybrid,
		Rerank:    cfg.Rerank && !c.NoRerank,
		Expand:    cfg.Expand || c.Expand,
		Threshold: cfg.Threshold,
	}
	if c.N > 0 {
		opts.NResults = c.N
	}
	if c.Threshold > 0 {
		opts.Threshold = c.Threshold
	}
	if c.Type != "" {
		t, err := ragkb.ParseSourceType(c.Type)
		if err != nil {
			return opts, err
		}
		opts.Filter.SourceType = &t
	}
	return opts, nil
}

func printResult(deps *Dependencies, r ragkb.SearchResult) {
	c := r.Chunk
	fmt.Fprintf(deps.Stdout, "%d. [%.3f %s] %s\n", r.Rank, r.Score(), r.Stage, c.Title())
	fmt.Fprintf(deps.Stdout, "   %s (%s)\n", c.SourceURL, c.SourceType)
	if v := c.Source.Video; v != nil && v.TimestampStart != "" {
		fmt.Fprintf(deps.Stdout, "   at %s\n", v.TimestampStart)
	}
	fmt.Fprintf(deps.Stdout, "   %s\n\n", snippet(c.Content))
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > snippetRunes {
		return string(r[:snippetRunes]) + "..."
	}
	return s
}
