// Package config resolves the layered configuration for one invocation.
//
// Precedence, lowest to highest: built-in defaults, the JSONC config file,
// the .env file, process environment, CLI flag overrides (applied by the
// caller). Credentials are environment-only; the config file never holds
// them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"

	"storysync/internal/jira"
)

// FileName is the default config file looked up in the working directory.
const FileName = "storysync.jsonc"

// EnvFileName is the default .env file looked up in the working directory.
const EnvFileName = ".env"

// Defaults for tracker-instance specifics.
const (
	DefaultStoryPointsField = "customfield_10014"
	DefaultSubtaskIssueType = "Sub-task"
	DefaultTimeout          = 30 * time.Second
)

// Config errors.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrEnvFileNotFound    = errors.New("env file not found")
	ErrCredentialsMissing = errors.New("missing credentials")
)

// Config is the resolved configuration.
type Config struct {
	// Tracker connection. Email and APIToken come from the environment
	// only (JIRA_EMAIL, JIRA_API_TOKEN).
	URL      string
	Email    string
	APIToken string

	// Defaults for sync targets; CLI flags override per invocation.
	ProjectKey string
	EpicKey    string

	// Tracker-instance specifics.
	StoryPointsField string
	SubtaskIssueType string
	Timeout          time.Duration

	// Phase toggles, all enabled by default.
	SyncDescriptions bool
	SyncSubtasks     bool
	SyncComments     bool
	SyncStatuses     bool

	// Workflow transition rules for the status-sync phase.
	Transitions []jira.TransitionRule
}

// Sources tracks which files contributed to the resolved config.
type Sources struct {
	ConfigFile string // path of the loaded JSONC file, empty when none
	EnvFile    string // path of the loaded .env file, empty when none
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StoryPointsField: DefaultStoryPointsField,
		SubtaskIssueType: DefaultSubtaskIssueType,
		Timeout:          DefaultTimeout,
		SyncDescriptions: true,
		SyncSubtasks:     true,
		SyncComments:     true,
		SyncStatuses:     true,
		Transitions:      jira.DefaultTransitions(),
	}
}

// Load resolves the configuration. configPath and envFile, when non-empty,
// name files that must exist; otherwise the defaults in workDir are
// optional. env is the process environment as a map.
func Load(workDir, configPath, envFile string, env map[string]string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	filePath, fileErr := resolveFile(workDir, configPath, FileName, ErrConfigFileNotFound)
	if fileErr != nil {
		return Config{}, Sources{}, fileErr
	}

	if filePath != "" {
		loaded, loadErr := loadConfigFile(filePath, &cfg)
		if loadErr != nil {
			return Config{}, Sources{}, loadErr
		}

		if loaded {
			sources.ConfigFile = filePath
		}
	}

	envPath, envErr := resolveFile(workDir, envFile, EnvFileName, ErrEnvFileNotFound)
	if envErr != nil {
		return Config{}, Sources{}, envErr
	}

	dotenv := map[string]string{}

	if envPath != "" {
		values, readErr := godotenv.Read(envPath)
		if readErr == nil {
			dotenv = values
			sources.EnvFile = envPath
		} else if envFile != "" {
			return Config{}, Sources{}, fmt.Errorf("%w: %s", ErrEnvFileNotFound, envFile)
		}
	}

	applyEnv(&cfg, dotenv, env)

	return cfg, sources, nil
}

// resolveFile turns an explicit path (which must exist) or the default
// file name (which is optional) into a path to try, or "" when the
// default does not exist.
func resolveFile(workDir, explicit, defaultName string, notFound error) (string, error) {
	if explicit != "" {
		path := explicit
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		if _, statErr := os.Stat(path); statErr != nil {
			return "", fmt.Errorf("%w: %s", notFound, explicit)
		}

		return path, nil
	}

	path := filepath.Join(workDir, defaultName)
	if _, statErr := os.Stat(path); statErr != nil {
		return "", nil //nolint:nilerr // default file is optional
	}

	return path, nil
}

// fileConfig is the JSONC schema. Pointer fields distinguish "absent"
// from an explicit zero so the file only overrides what it names.
type fileConfig struct {
	URL              string                `json:"url"`
	ProjectKey       string                `json:"project_key"`
	EpicKey          string                `json:"epic_key"`
	StoryPointsField string                `json:"story_points_field"`
	SubtaskIssueType string                `json:"subtask_issue_type"`
	TimeoutSeconds   *int                  `json:"timeout_seconds"`
	Phases           *filePhases           `json:"phases"`
	Transitions      []jira.TransitionRule `json:"transitions"`
}

type filePhases struct {
	Descriptions *bool `json:"descriptions"`
	Subtasks     *bool `json:"subtasks"`
	Comments     *bool `json:"comments"`
	Statuses     *bool `json:"statuses"`
}

func loadConfigFile(path string, cfg *Config) (bool, error) {
	data, readErr := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return false, nil
		}

		return false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, readErr)
	}

	standardized, stdErr := hujson.Standardize(data)
	if stdErr != nil {
		return false, fmt.Errorf("%w %s: invalid JSONC: %w", ErrConfigInvalid, path, stdErr)
	}

	var fc fileConfig

	if unmarshalErr := json.Unmarshal(standardized, &fc); unmarshalErr != nil {
		return false, fmt.Errorf("%w %s: invalid JSON: %w", ErrConfigInvalid, path, unmarshalErr)
	}

	mergeFile(cfg, fc)

	return true, nil
}

func mergeFile(cfg *Config, fc fileConfig) {
	if fc.URL != "" {
		cfg.URL = fc.URL
	}

	if fc.ProjectKey != "" {
		cfg.ProjectKey = fc.ProjectKey
	}

	if fc.EpicKey != "" {
		cfg.EpicKey = fc.EpicKey
	}

	if fc.StoryPointsField != "" {
		cfg.StoryPointsField = fc.StoryPointsField
	}

	if fc.SubtaskIssueType != "" {
		cfg.SubtaskIssueType = fc.SubtaskIssueType
	}

	if fc.TimeoutSeconds != nil && *fc.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(*fc.TimeoutSeconds) * time.Second
	}

	if fc.Phases != nil {
		if fc.Phases.Descriptions != nil {
			cfg.SyncDescriptions = *fc.Phases.Descriptions
		}

		if fc.Phases.Subtasks != nil {
			cfg.SyncSubtasks = *fc.Phases.Subtasks
		}

		if fc.Phases.Comments != nil {
			cfg.SyncComments = *fc.Phases.Comments
		}

		if fc.Phases.Statuses != nil {
			cfg.SyncStatuses = *fc.Phases.Statuses
		}
	}

	if len(fc.Transitions) > 0 {
		cfg.Transitions = fc.Transitions
	}
}

// applyEnv overlays .env values then process environment values; the
// process environment wins.
func applyEnv(cfg *Config, dotenv, env map[string]string) {
	lookup := func(key string) string {
		if v := env[key]; v != "" {
			return v
		}

		return dotenv[key]
	}

	if v := lookup("JIRA_URL"); v != "" {
		cfg.URL = v
	}

	if v := lookup("JIRA_EMAIL"); v != "" {
		cfg.Email = v
	}

	if v := lookup("JIRA_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}

	if v := lookup("JIRA_PROJECT_KEY"); v != "" {
		cfg.ProjectKey = v
	}

	if v := lookup("JIRA_EPIC_KEY"); v != "" {
		cfg.EpicKey = v
	}

	if v := lookup("JIRA_STORY_POINTS_FIELD"); v != "" {
		cfg.StoryPointsField = v
	}
}

// Validate reports every missing required credential in one error.
func (c Config) Validate() error {
	var missing []string

	if c.URL == "" {
		missing = append(missing, "JIRA_URL")
	}

	if c.Email == "" {
		missing = append(missing, "JIRA_EMAIL")
	}

	if c.APIToken == "" {
		missing = append(missing, "JIRA_API_TOKEN")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s in the environment or a .env file", ErrCredentialsMissing, strings.Join(missing, ", "))
	}

	return nil
}

// renderedConfig is the shape printed by Format. The API token is
// redacted; everything else is the effective value.
type renderedConfig struct {
	URL              string                `json:"url"`
	Email            string                `json:"email"`
	APIToken         string                `json:"api_token"`
	ProjectKey       string                `json:"project_key"`
	EpicKey          string                `json:"epic_key"`
	StoryPointsField string                `json:"story_points_field"`
	SubtaskIssueType string                `json:"subtask_issue_type"`
	TimeoutSeconds   int                   `json:"timeout_seconds"`
	Phases           map[string]bool       `json:"phases"`
	Transitions      []jira.TransitionRule `json:"transitions"`
}

// Format renders the effective config as indented JSON with the API
// token redacted.
func Format(cfg Config) (string, error) {
	token := ""
	if cfg.APIToken != "" {
		token = "[redacted]"
	}

	rendered := renderedConfig{
		URL:              cfg.URL,
		Email:            cfg.Email,
		APIToken:         token,
		ProjectKey:       cfg.ProjectKey,
		EpicKey:          cfg.EpicKey,
		StoryPointsField: cfg.StoryPointsField,
		SubtaskIssueType: cfg.SubtaskIssueType,
		TimeoutSeconds:   int(cfg.Timeout / time.Second),
		Phases: map[string]bool{
			"descriptions": cfg.SyncDescriptions,
			"subtasks":     cfg.SyncSubtasks,
			"comments":     cfg.SyncComments,
			"statuses":     cfg.SyncStatuses,
		},
		Transitions: cfg.Transitions,
	}

	data, marshalErr := json.MarshalIndent(rendered, "", "  ")
	if marshalErr != nil {
		return "", fmt.Errorf("formatting config: %w", marshalErr)
	}

	return string(data), nil
}
