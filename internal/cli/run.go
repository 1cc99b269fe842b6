package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"storysync/internal/config"
	"storysync/internal/logging"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

// appVersion is the release version reported by the version command.
const appVersion = "0.1.0"

// Global flag errors.
var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownFlag     = errors.New("unknown flag")
)

// Run is the main entry point. Returns exit code: 0 success, 1 runtime
// errors or warnings, 2 usage errors. A signal on sigCh cancels the
// context handed to the running command.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	// Parse global flags
	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 2
	}

	// Default workDir to current directory
	workDir := flags.workDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			fprintln(errOut, "error: cannot get working directory:", err)

			return 1
		}
	}

	log, logErr := logging.New(flags.verbose, flags.quiet)
	if logErr != nil {
		fprintln(errOut, "error:", logErr)

		return 1
	}

	defer func() { _ = log.Sync() }()

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	name := flags.remaining[0]
	rest := flags.remaining[1:]

	// Help needs only the command registry; dispatch it before loading
	// config so it works next to a broken config file.
	if name == "-h" || name == helpFlag {
		printUsage(out)

		return 0
	}

	if name == "help" {
		return runHelp(NewIO(in, out, errOut), commandSet(&App{Log: log}), rest)
	}

	// Load config; credentials are checked later, only by commands that
	// talk to the tracker, so validate works without them.
	cfg, sources, cfgErr := config.Load(workDir, flags.configPath, flags.envFile, env)
	if cfgErr != nil {
		fprintln(errOut, "error:", cfgErr)

		return 1
	}

	app := &App{Config: cfg, Sources: sources, WorkDir: workDir, Log: log, Verbose: flags.verbose}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	// Create IO for command
	o := NewIO(in, out, errOut)

	// Dispatch to command
	for _, cmd := range commandSet(app) {
		if cmd.Name() == name {
			if code := cmd.Run(ctx, o, rest); code != 0 {
				return code
			}

			// Finish handles warnings and exit code
			return o.Finish()
		}
	}

	fprintln(errOut, "error: unknown command:", name)
	printUsage(errOut)

	return 2
}

// commandSet builds the command registry.
func commandSet(app *App) []*Command {
	return []*Command{
		SyncCmd(app),
		AnalyzeCmd(app),
		ValidateCmd(app),
		ExportCmd(app),
		ConfigCmd(app),
		VersionCmd(),
	}
}

func runHelp(o *IO, commands []*Command, args []string) int {
	if len(args) == 0 {
		printUsage(o.out)

		return 0
	}

	for _, cmd := range commands {
		if cmd.Name() == args[0] {
			cmd.PrintHelp(o)

			return 0
		}
	}

	o.ErrPrintln("error: unknown command:", args[0])

	return 2
}

type globalFlags struct {
	workDir    string
	configPath string
	envFile    string
	verbose    bool
	quiet      bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --env-file flag
	if arg == "--env-file" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.envFile = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--env-file="); ok {
		flags.envFile = after

		return consumedOne, nil
	}

	// Log level flags
	if arg == "--verbose" {
		flags.verbose = true

		return consumedOne, nil
	}

	if arg == "--quiet" {
		flags.quiet = true

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(writer io.Writer) {
	fprintln(writer, `storysync - sync user stories from documents to Jira

Usage: storysync [options] <command> [args]

Options:
  -C, --cwd <dir>       Run as if started in <dir>
  -c, --config <file>   Use specified config file
      --env-file <file> Load credentials from <file> instead of .env
      --verbose         Debug-level logging
      --quiet           Errors only

Commands:
  sync <file> [flags]       Reconcile a document against its Jira epic
  analyze <file> [flags]    Show the story/issue match table, change nothing
  validate <file>           Check document structure
  export <file> [flags]     Write a reconciliation snapshot as JSON
  config                    Show resolved configuration
  version                   Print version
  help [command]            Show help for a command`)
}
