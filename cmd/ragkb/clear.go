package main

import (
	"fmt"

	"github.com/fwojciec/ragkb"
)

// Run executes the clear command.
func (c *ClearCmd) Run(deps *Dependencies) error {
	var filter ragkb.ClearFilter
	switch c.Status {
	case "", "queued":
	case "all":
		filter.All = true
	default:
		s := ragkb.Status(c.Status)
		filter.Status = &s
	}

	n, err := deps.Registry.Clear(deps.Ctx, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Removed %d sources\n", n)
	return nil
}

// Run executes the reset command.
func (c *ResetCmd) Run(deps *Dependencies) error {
	if !c.Force {
		return ragkb.Errorf(ragkb.EINVALID, "use --force to confirm deleting every source and chunk")
	}

	chunks, err := deps.Index.Count(deps.Ctx)
	if err != nil {
		return err
	}
	if err := deps.Index.Reset(deps.Ctx); err != nil {
		return err
	}
	sources, err := deps.Registry.Clear(deps.Ctx, ragkb.ClearFilter{All: true})
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Deleted %d chunks and %d sources\n", chunks, sources)
	return nil
}
