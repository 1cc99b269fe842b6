package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"storysync/internal/sync"
)

// AnalyzeCmd returns the analyze command.
func AnalyzeCmd(app *App) *Command {
	flags := flag.NewFlagSet("analyze", flag.ContinueOnError)
	epic := flags.String("epic", "", "Epic issue key to match against")

	return &Command{
		Flags: flags,
		Usage: "analyze <file> [flags]",
		Short: "Show the story/issue match table, change nothing",
		Long: `Parse the document, fetch the epic's child issues, and print which
story matched which issue. Purely read-only; the same matching a
sync run would use.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execAnalyze(ctx, app, o, *epic, args)
		},
	}
}

func execAnalyze(ctx context.Context, app *App, o *IO, epicFlag string, args []string) error {
	if len(args) != 1 {
		return usageErrorf("expected exactly one document, got %d", len(args))
	}

	// Analyze never mutates, but hand it a dry tracker anyway.
	tracker, trackerErr := app.Tracker(true)
	if trackerErr != nil {
		return trackerErr
	}

	eng := app.Engine(tracker, sync.Options{DryRun: true})

	res, analyzeErr := eng.Analyze(ctx, app.ResolvePath(args[0]), app.EpicKey(epicFlag))
	if analyzeErr != nil {
		return analyzeErr
	}

	for _, w := range res.Warnings {
		o.Warn(w, "")
	}

	renderAnalysis(o, res)

	return nil
}
