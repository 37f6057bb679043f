package main

import (
	"fmt"
	"time"
)

// Run executes the refresh command.
func (c *RefreshCmd) Run(deps *Dependencies) error {
	report, err := deps.Refresh.RunNow(deps.Ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "Candidates: %d\n", report.Candidates)
	fmt.Fprintf(deps.Stdout, "Updated:    %d\n", report.Updated)
	fmt.Fprintf(deps.Stdout, "Unchanged:  %d\n", report.Unchanged)
	fmt.Fprintf(deps.Stdout, "Skipped:    %d (HTTP validators unchanged)\n", report.Skipped)
	fmt.Fprintf(deps.Stdout, "Failed:     %d\n", report.Failed)
	return nil
}

// Run executes the schedule command. It blocks until the context is
// canceled.
func (c *ScheduleCmd) Run(deps *Dependencies) error {
	deps.Refresh.Start(deps.Ctx)
	defer deps.Refresh.Stop()

	fmt.Fprintf(deps.Stdout, "Refresh scheduled (%s). Next run: %s\n",
		deps.Config.Refresh.Schedule,
		deps.Refresh.NextRun(time.Now()).Format(time.RFC3339),
	)
	<-deps.Ctx.Done()
	fmt.Fprintln(deps.Stdout, "Stopping scheduler.")
	return nil
}
