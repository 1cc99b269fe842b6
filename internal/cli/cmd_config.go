package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"storysync/internal/config"
)

// ConfigCmd returns the config command.
func ConfigCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("config", flag.ContinueOnError),
		Usage: "config",
		Short: "Show resolved configuration",
		Long: `Print the effective configuration after defaults, config file,
.env file, and environment are merged. The API token is redacted.`,
		Exec: func(_ context.Context, o *IO, _ []string) error {
			return execConfig(app, o)
		},
	}
}

func execConfig(app *App, o *IO) error {
	formatted, formatErr := config.Format(app.Config)
	if formatErr != nil {
		return formatErr
	}

	o.Println(formatted)

	// Print sources
	o.Println("")
	o.Println("# Sources:")

	if app.Sources.ConfigFile != "" {
		o.Println("#   config:", app.Sources.ConfigFile)
	}

	if app.Sources.EnvFile != "" {
		o.Println("#   env:", app.Sources.EnvFile)
	}

	if app.Sources.ConfigFile == "" && app.Sources.EnvFile == "" {
		o.Println("#   (using defaults and environment only)")
	}

	return nil
}
