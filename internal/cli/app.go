package cli

import (
	"path/filepath"

	"go.uber.org/zap"

	"storysync/internal/adf"
	"storysync/internal/config"
	"storysync/internal/hook"
	"storysync/internal/jira"
	"storysync/internal/parse"
	"storysync/internal/sync"
	"storysync/internal/story"
)

// App carries the resolved configuration and shared dependencies into
// command constructors. One App per Run invocation.
type App struct {
	Config  config.Config
	Sources config.Sources
	WorkDir string
	Log     *zap.SugaredLogger

	// Verbose extends command output, e.g. with the hook event history
	// after a sync.
	Verbose bool
}

// Tracker builds the Jira client from the app config. Credentials are
// validated here so every command fails the same way when they are
// missing. dryRun is baked into the client; a dry client rejects every
// mutation regardless of what callers do with it.
func (a *App) Tracker(dryRun bool) (*jira.Client, error) {
	if err := a.Config.Validate(); err != nil {
		return nil, err
	}

	return jira.NewClient(jira.Options{
		BaseURL:          a.Config.URL,
		Email:            a.Config.Email,
		APIToken:         a.Config.APIToken,
		StoryPointsField: a.Config.StoryPointsField,
		SubtaskIssueType: a.Config.SubtaskIssueType,
		Timeout:          a.Config.Timeout,
		DryRun:           dryRun,
		Transitions:      a.Config.Transitions,
		Log:              a.Log,
	})
}

// Engine wires a reconciliation engine around the given tracker using
// the app's parser registry, ADF formatter, and logger. Callers fill
// the run-shaping fields of opts (DryRun, Phases, StoryFilter,
// ProjectKey); the dependency fields are overwritten here.
func (a *App) Engine(tracker sync.Tracker, opts sync.Options) *sync.Engine {
	opts.Tracker = tracker
	opts.Parser = parse.NewDefaultRegistry(a.Log)
	opts.Formatter = adf.NewFormatter()
	opts.Hooks = hook.NewManager(a.Log)
	opts.Log = a.Log

	return sync.NewEngine(opts)
}

// EpicKey resolves the target epic: the --epic flag wins, then the
// config value (which itself already folded in JIRA_EPIC_KEY). Empty
// means the document's own epic key decides.
func (a *App) EpicKey(flagValue string) story.IssueKey {
	if flagValue != "" {
		return story.IssueKey(flagValue)
	}

	return story.IssueKey(a.Config.EpicKey)
}

// ProjectKey resolves the target project the same way as EpicKey.
func (a *App) ProjectKey(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}

	return a.Config.ProjectKey
}

// ConfiguredPhases maps the config phase toggles onto an engine phase
// set. All four default to on; a config file can switch individual
// phases off for every run.
func (a *App) ConfiguredPhases() sync.Phases {
	var p sync.Phases

	if a.Config.SyncDescriptions {
		p.Enable(sync.PhaseDescriptions)
	}

	if a.Config.SyncSubtasks {
		p.Enable(sync.PhaseSubtasks)
	}

	if a.Config.SyncComments {
		p.Enable(sync.PhaseComments)
	}

	if a.Config.SyncStatuses {
		p.Enable(sync.PhaseStatuses)
	}

	return p
}

// ResolvePath makes a command-line path absolute relative to the work
// directory, honoring --cwd.
func (a *App) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(a.WorkDir, path)
}
