package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"storysync/internal/parse"
	"storysync/internal/story"
	"storysync/internal/sync"
)

// snapshot is the export file schema: local stories, remote issues, and
// the match table, self-contained enough to review a reconciliation
// without tracker access.
type snapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Epic        snapshotEpic       `json:"epic"`
	Stories     []story.UserStory  `json:"stories"`
	Remote      []story.IssueData  `json:"remote"`
	Matches     []sync.MatchedPair `json:"matches"`
	Unmatched   []story.ID         `json:"unmatched,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

type snapshotEpic struct {
	Key   story.IssueKey `json:"key"`
	Title string         `json:"title,omitempty"`
}

// exportFlags holds parsed export command options.
type exportFlags struct {
	epic string
	out  string
}

// ExportCmd returns the export command.
func ExportCmd(app *App) *Command {
	flags := flag.NewFlagSet("export", flag.ContinueOnError)
	opts := &exportFlags{}

	flags.StringVar(&opts.epic, "epic", "", "Epic issue key to export against")
	flags.StringVarP(&opts.out, "out", "o", "", "Output path (default <file>.state.json)")

	return &Command{
		Flags: flags,
		Usage: "export <file> [flags]",
		Short: "Write a reconciliation snapshot as JSON",
		Long: `Parse the document, fetch the epic's children and their comments, and
write everything plus the match table to a JSON snapshot. The write
is atomic: the file never holds a half-written snapshot.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execExport(ctx, app, o, opts, args)
		},
	}
}

func execExport(ctx context.Context, app *App, o *IO, opts *exportFlags, args []string) error {
	if len(args) != 1 {
		return usageErrorf("expected exactly one document, got %d", len(args))
	}

	// Export only reads from the tracker; a dry client enforces that.
	tracker, trackerErr := app.Tracker(true)
	if trackerErr != nil {
		return trackerErr
	}

	path := app.ResolvePath(args[0])

	outPath := opts.out
	if outPath == "" {
		outPath = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".state.json"
	}

	outPath = app.ResolvePath(outPath)

	return withDocumentLock(path, func() error {
		parsed, parseErr := parse.NewDefaultRegistry(app.Log).Parse(path)
		if parseErr != nil {
			return fmt.Errorf("parsing document: %w", parseErr)
		}

		epicKey := app.EpicKey(opts.epic)
		if epicKey == "" {
			epicKey = parsed.EpicKey
		}

		if epicKey == "" {
			return sync.ErrNoEpic
		}

		epicIssue, epicErr := tracker.GetIssue(ctx, epicKey)
		if epicErr != nil {
			return fmt.Errorf("verifying epic %s: %w", epicKey, epicErr)
		}

		children, fetchErr := tracker.GetEpicChildren(ctx, epicKey)
		if fetchErr != nil {
			return fmt.Errorf("fetching children of %s: %w", epicKey, fetchErr)
		}

		// Attach comments so the snapshot stands on its own. A failed
		// fetch degrades that issue's snapshot, not the export.
		for i := range children {
			comments, commentsErr := tracker.GetComments(ctx, children[i].Key)
			if commentsErr != nil {
				o.Warn(fmt.Sprintf("fetching comments of %s: %v", children[i].Key, commentsErr), "")

				continue
			}

			children[i].Comments = comments
		}

		matches, unmatched, warnings := sync.Match(parsed.Stories, children)

		for _, w := range parsed.Warnings {
			o.Warn(w.String(), "")
		}

		snap := snapshot{
			GeneratedAt: time.Now().UTC(),
			Epic:        snapshotEpic{Key: epicIssue.Key, Title: epicIssue.Summary},
			Stories:     parsed.Stories,
			Remote:      children,
			Matches:     matches,
			Unmatched:   unmatched,
			Warnings:    warnings,
		}

		data, marshalErr := json.MarshalIndent(snap, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("encoding snapshot: %w", marshalErr)
		}

		data = append(data, '\n')

		if writeErr := atomic.WriteFile(outPath, bytes.NewReader(data)); writeErr != nil {
			return fmt.Errorf("writing snapshot: %w", writeErr)
		}

		app.Log.Infow("exported snapshot",
			"epic", epicKey.String(),
			"stories", len(parsed.Stories),
			"issues", len(children),
			"out", outPath)

		o.Printf("Exported %d stories and %d remote issues to %s\n", len(parsed.Stories), len(children), outPath)

		return nil
	})
}
