package main

import (
	"fmt"

	"github.com/fwojciec/ragkb"
)

// Run executes the stats command.
func (c *StatsCmd) Run(deps *Dependencies) error {
	reg, err := deps.Registry.Stats(deps.Ctx)
	if err != nil {
		return err
	}
	idx, err := deps.Index.Stats(deps.Ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(deps.Stdout, "Sources")
	fmt.Fprintf(deps.Stdout, "  total    %d\n", reg.Total)
	fmt.Fprintf(deps.Stdout, "  pending  %d\n", reg.Pending)
	fmt.Fprintf(deps.Stdout, "  scraped  %d\n", reg.Scraped)
	fmt.Fprintf(deps.Stdout, "  failed   %d\n", reg.Failed)
	printByType(deps, reg.BySourceType)

	fmt.Fprintln(deps.Stdout, "\nIndex")
	fmt.Fprintf(deps.Stdout, "  chunks     %d\n", idx.TotalChunks)
	fmt.Fprintf(deps.Stdout, "  documents  %d\n", idx.Documents)
	printByType(deps, idx.BySourceType)
	return nil
}

func printByType(deps *Dependencies, counts map[ragkb.SourceType]int) {
	for _, t := range ragkb.SourceTypes {
		if n := counts[t]; n > 0 {
			fmt.Fprintf(deps.Stdout, "    %-16s %d\n", t, n)
		}
	}
}
