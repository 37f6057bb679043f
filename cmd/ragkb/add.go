package main

import (
	"fmt"
	"strings"

	"github.com/fwojciec/ragkb"
	"github.com/fwojciec/ragkb/discover"
)

// Run executes the add command.
func (c *AddCmd) Run(deps *Dependencies) error {
	input := strings.TrimSpace(strings.Join(c.Input, " "))
	if input == "" {
		return ragkb.Errorf(ragkb.EINVALID, "nothing to add: pass URLs or a search prompt")
	}

	if c.Preview {
		kind, urls, err := deps.Sources.Preview(deps.Ctx, input)
		if err != nil {
			return err
		}
		fmt.Fprintf(deps.Stdout, "Input type: %s\n", kind)
		if len(urls) == 0 {
			fmt.Fprintln(deps.Stdout, "No URLs found.")
			return nil
		}
		fmt.Fprintf(deps.Stdout, "Would add %d URLs:\n", len(urls))
		for _, u := range urls {
			fmt.Fprintf(deps.Stdout, "  [%s] %s\n", ragkb.DetectSourceType(u), u)
		}
		return nil
	}

	report, err := deps.Sources.AddSources(deps.Ctx, input)
	if err != nil {
		return err
	}
	printAddReport(deps, report)
	return nil
}

func printAddReport(deps *Dependencies, r *discover.AddReport) {
	fmt.Fprintf(deps.Stdout, "Input type:  %s\n", r.Kind)
	fmt.Fprintf(deps.Stdout, "Discovered:  %d\n", r.Discovered)
	fmt.Fprintf(deps.Stdout, "Added:       %d\n", r.Added)
	fmt.Fprintf(deps.Stdout, "Skipped:     %d (already registered)\n", r.Skipped)
	if r.Added > 0 {
		fmt.Fprintln(deps.Stdout, "\nRun 'ragkb process' to scrape and index the new sources.")
	}
}
