package cli

import (
	"storysync/internal/hook"
	"storysync/internal/sync"
)

// maxRenderedErrors caps the error list in the summary; the full list is
// always in the log.
const maxRenderedErrors = 5

// renderResult prints the summary for one sync run. Result warnings are
// not printed here; callers route them through IO.Warn so they land on
// stderr at both ends of the output.
func renderResult(o *IO, res *sync.Result) {
	mode := "LIVE"
	if res.DryRun {
		mode = "DRY-RUN (no changes made)"
	}

	o.Println("Sync summary")
	o.Println()
	o.Printf("  Mode:             %s\n", mode)
	o.Printf("  Stories matched:  %d\n", res.StoriesMatched)
	o.Printf("  Stories updated:  %d\n", res.StoriesUpdated)
	o.Printf("  Subtasks created: %d\n", res.SubtasksCreated)
	o.Printf("  Subtasks updated: %d\n", res.SubtasksUpdated)
	o.Printf("  Comments added:   %d\n", res.CommentsAdded)
	o.Printf("  Statuses updated: %d\n", res.StatusesUpdated)

	renderUnmatched(o, res)

	if len(res.Errors) > 0 {
		o.Println()
		o.Printf("Errors (%d):\n", len(res.Errors))

		for i, e := range res.Errors {
			if i == maxRenderedErrors {
				o.Printf("  ... and %d more\n", len(res.Errors)-maxRenderedErrors)

				break
			}

			o.Println("  -", e)
		}
	}

	o.Println()

	if res.Success {
		o.Println("Sync completed successfully.")
	} else {
		o.Println("Sync completed with errors.")
	}
}

// renderEventHistory prints the hook events recorded during a run,
// oldest first.
func renderEventHistory(o *IO, events []hook.Event) {
	if len(events) == 0 {
		return
	}

	o.Println()
	o.Printf("Event history (%d):\n", len(events))

	for _, ev := range events {
		o.Printf("  %s  %-26s", ev.Time.Format("15:04:05.000"), string(ev.Point))

		if ev.StoryID != "" {
			o.Printf("  story=%s", string(ev.StoryID))
		}

		if ev.IssueKey != "" {
			o.Printf("  issue=%s", ev.IssueKey.String())
		}

		o.Println()
	}
}

// renderAnalysis prints the match table produced by an analyze pass.
func renderAnalysis(o *IO, res *sync.Result) {
	o.Printf("Matched stories (%d):\n", len(res.Matches))

	for _, m := range res.Matches {
		o.Printf("  %s -> %s\n", m.StoryID, m.IssueKey)
	}

	renderUnmatched(o, res)
}

func renderUnmatched(o *IO, res *sync.Result) {
	if len(res.Unmatched) == 0 {
		return
	}

	o.Println()
	o.Printf("Unmatched stories (%d):\n", len(res.Unmatched))

	for _, id := range res.Unmatched {
		o.Println("  -", string(id))
	}
}
