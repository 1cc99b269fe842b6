package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"storysync/internal/story"
	"storysync/internal/sync"
)

// errPhasesDisabled rejects a configuration that switches every sync
// phase off; a run with zero phases would otherwise fall back to all of
// them.
var errPhasesDisabled = errors.New("every sync phase is disabled in the configuration; enable one or pass --phase")

// syncFlags holds parsed sync command options.
type syncFlags struct {
	epic      string
	project   string
	execute   bool
	noConfirm bool
	phases    []string
	storyID   string
}

// SyncCmd returns the sync command.
func SyncCmd(app *App) *Command {
	flags := flag.NewFlagSet("sync", flag.ContinueOnError)
	opts := &syncFlags{}

	flags.StringVar(&opts.epic, "epic", "", "Epic issue key to sync against")
	flags.StringVar(&opts.project, "project", "", "Project key for created subtasks")
	flags.BoolVar(&opts.execute, "execute", false, "Apply changes; without it the run is a dry-run")
	flags.BoolVar(&opts.noConfirm, "no-confirm", false, "Skip the confirmation prompt in live mode")
	flags.StringSliceVar(&opts.phases, "phase", nil, "Run only this phase (descriptions|subtasks|comments|statuses); repeatable")
	flags.StringVar(&opts.storyID, "story", "", "Restrict mutations to one story ID")

	return &Command{
		Flags: flags,
		Usage: "sync <file> [flags]",
		Short: "Reconcile a document against its Jira epic",
		Long: `Parse the document, match its stories to the epic's child issues,
and push descriptions, subtasks, commit comments, and status
transitions to Jira.

Without --execute nothing is written: the run logs every change it
would make and reports the counts. Live runs show the match table
and ask for confirmation first unless --no-confirm is set.

The epic comes from --epic, the config file, JIRA_EPIC_KEY, or the
document's own frontmatter, in that order.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execSync(ctx, app, o, opts, args)
		},
	}
}

func execSync(ctx context.Context, app *App, o *IO, opts *syncFlags, args []string) error {
	if len(args) != 1 {
		return usageErrorf("expected exactly one document, got %d", len(args))
	}

	if opts.storyID != "" {
		if _, ok := story.ParseID(opts.storyID); !ok {
			return usageErrorf("invalid story ID %q", opts.storyID)
		}
	}

	phases, phasesErr := resolvePhases(app, opts.phases)
	if phasesErr != nil {
		return phasesErr
	}

	dryRun := !opts.execute

	tracker, trackerErr := app.Tracker(dryRun)
	if trackerErr != nil {
		return trackerErr
	}

	eng := app.Engine(tracker, sync.Options{
		DryRun:      dryRun,
		Phases:      phases,
		StoryFilter: story.ID(opts.storyID),
		ProjectKey:  app.ProjectKey(opts.project),
	})

	path := app.ResolvePath(args[0])
	epic := app.EpicKey(opts.epic)

	return withDocumentLock(path, func() error {
		if !dryRun && !opts.noConfirm {
			proceed, confirmErr := confirmLiveSync(ctx, eng, o, path, epic)
			if confirmErr != nil {
				return confirmErr
			}

			if !proceed {
				o.Println("Aborted.")

				return nil
			}

			o.Println()
		}

		res, syncErr := eng.Sync(ctx, path, epic)
		if syncErr != nil {
			return syncErr
		}

		for _, w := range res.Warnings {
			o.Warn(w, "")
		}

		renderResult(o, res)

		if app.Verbose {
			renderEventHistory(o, eng.Hooks().History())
		}

		if !res.Success {
			return fmt.Errorf("sync completed with %d error(s)", len(res.Errors))
		}

		return nil
	})
}

// confirmLiveSync shows the match table a live run is about to act on
// and asks the user to proceed.
func confirmLiveSync(ctx context.Context, eng *sync.Engine, o *IO, path string, epic story.IssueKey) (bool, error) {
	res, analyzeErr := eng.Analyze(ctx, path, epic)
	if analyzeErr != nil {
		return false, analyzeErr
	}

	renderAnalysis(o, res)
	o.Println()

	return confirm(o.In, o, "Proceed with live sync? (y/N)"), nil
}

// resolvePhases turns repeated --phase flags into a phase set, falling
// back to the phases enabled in config. A config with every phase
// switched off is an error, not an all-phases run.
func resolvePhases(app *App, names []string) (sync.Phases, error) {
	if len(names) == 0 {
		configured := app.ConfiguredPhases()
		if !configured.Any() {
			return sync.Phases{}, errPhasesDisabled
		}

		return configured, nil
	}

	var phases sync.Phases

	for _, name := range names {
		ph, parseErr := sync.ParsePhase(name)
		if parseErr != nil {
			return sync.Phases{}, usageErrorf("%v", parseErr)
		}

		phases.Enable(ph)
	}

	return phases, nil
}
