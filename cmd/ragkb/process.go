package main

import (
	"fmt"
)

// Run executes the process command.
func (c *ProcessCmd) Run(deps *Dependencies) error {
	report, err := deps.Queue.ProcessAll(deps.Ctx, c.Batches)
	if err != nil {
		return err
	}
	if report.Processed == 0 {
		fmt.Fprintln(deps.Stdout, "Nothing to process. Use 'ragkb add' to queue sources.")
		return nil
	}
	fmt.Fprintf(deps.Stdout, "Processed: %d\n", report.Processed)
	fmt.Fprintf(deps.Stdout, "Succeeded: %d\n", report.Succeeded)
	fmt.Fprintf(deps.Stdout, "Failed:    %d\n", report.Failed)
	return nil
}
