package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"storysync/internal/parse"
)

// ValidateCmd returns the validate command.
func ValidateCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("validate", flag.ContinueOnError),
		Usage: "validate <file>",
		Short: "Check document structure",
		Long: `Parse the document and report completeness problems: stories without
descriptions, missing story points, empty acceptance criteria.
Needs no Jira credentials.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execValidate(app, o, args)
		},
	}
}

func execValidate(app *App, o *IO, args []string) error {
	if len(args) != 1 {
		return usageErrorf("expected exactly one document, got %d", len(args))
	}

	registry := parse.NewDefaultRegistry(app.Log)

	problems := registry.Validate(app.ResolvePath(args[0]))
	if len(problems) == 0 {
		o.Println("Document is valid:", args[0])

		return nil
	}

	for _, p := range problems {
		o.Println("-", p)
	}

	return fmt.Errorf("%d problem(s) found", len(problems))
}
