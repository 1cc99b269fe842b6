package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// VersionCmd returns the version command.
func VersionCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("version", flag.ContinueOnError),
		Usage: "version",
		Short: "Print version",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			o.Println("storysync", appVersion)

			return nil
		},
	}
}
