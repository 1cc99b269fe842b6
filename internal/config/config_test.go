package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storysync/internal/jira"
)

func Test_Load_ReturnsDefaults_WhenNoFilesPresent(t *testing.T) {
	t.Parallel()

	// Contract: with no config file, no .env, and an empty environment,
	// Load returns the built-in defaults and records no sources.
	cfg, sources, err := Load(t.TempDir(), "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultStoryPointsField, cfg.StoryPointsField)
	assert.Equal(t, DefaultSubtaskIssueType, cfg.SubtaskIssueType)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.True(t, cfg.SyncDescriptions)
	assert.True(t, cfg.SyncSubtasks)
	assert.True(t, cfg.SyncComments)
	assert.True(t, cfg.SyncStatuses)
	assert.NotEmpty(t, cfg.Transitions)
	assert.Equal(t, Sources{}, sources)
}

func Test_Load_MergesConfigFile_WhenPresent(t *testing.T) {
	t.Parallel()

	// Contract: the default-named JSONC file in the working directory is
	// merged over the defaults, comments and trailing commas allowed.
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `{
  // tracker connection
  "url": "https://example.atlassian.net",
  "project_key": "PROJ",
  "epic_key": "PROJ-1",
  "timeout_seconds": 10,
  "phases": {
    "statuses": false,
  },
  "transitions": [
    {"target": "Done", "steps": [{"from": "Open", "id": 31}]},
  ],
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, sources, err := Load(dir, "", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://example.atlassian.net", cfg.URL)
	assert.Equal(t, "PROJ", cfg.ProjectKey)
	assert.Equal(t, "PROJ-1", cfg.EpicKey)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.True(t, cfg.SyncDescriptions, "unnamed phases keep their default")
	assert.False(t, cfg.SyncStatuses)
	assert.Equal(t, path, sources.ConfigFile)

	want := []jira.TransitionRule{
		{Target: "Done", Steps: []jira.TransitionStep{{From: "Open", ID: 31}}},
	}
	if diff := cmp.Diff(want, cfg.Transitions); diff != "" {
		t.Fatalf("transitions mismatch (-want +got):\n%s", diff)
	}
}

func Test_Load_IgnoresCredentialKeys_InConfigFile(t *testing.T) {
	t.Parallel()

	// Contract: credentials never come from the config file, even when
	// someone writes them there.
	dir := t.TempDir()
	content := `{"email": "a@b.c", "api_token": "secret", "url": "https://x.example"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644))

	cfg, _, err := Load(dir, "", "", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.Email)
	assert.Empty(t, cfg.APIToken)
	assert.Equal(t, "https://x.example", cfg.URL)
}

func Test_Load_ProcessEnvWins_OverDotenv(t *testing.T) {
	t.Parallel()

	// Contract: .env fills in values the process environment does not
	// set; when both set a key, the process environment wins.
	dir := t.TempDir()
	dotenv := "JIRA_URL=https://dotenv.example\nJIRA_EMAIL=dev@example.com\nJIRA_API_TOKEN=tok-123\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFileName), []byte(dotenv), 0o644))

	env := map[string]string{"JIRA_URL": "https://env.example"}

	cfg, sources, err := Load(dir, "", "", env)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example", cfg.URL)
	assert.Equal(t, "dev@example.com", cfg.Email)
	assert.Equal(t, "tok-123", cfg.APIToken)
	assert.Equal(t, filepath.Join(dir, EnvFileName), sources.EnvFile)
}

func Test_Load_Fails_WhenExplicitConfigFileMissing(t *testing.T) {
	t.Parallel()

	// Contract: a config file named explicitly must exist; only the
	// default lookup is optional.
	_, _, err := Load(t.TempDir(), "missing.jsonc", "", nil)
	require.ErrorIs(t, err, ErrConfigFileNotFound)
}

func Test_Load_Fails_WhenExplicitEnvFileMissing(t *testing.T) {
	t.Parallel()

	_, _, err := Load(t.TempDir(), "", "missing.env", nil)
	require.ErrorIs(t, err, ErrEnvFileNotFound)
}

func Test_Load_Fails_OnMalformedConfigFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644))

	_, _, err := Load(dir, "", "", nil)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func Test_Validate_ListsAllMissingCredentials(t *testing.T) {
	t.Parallel()

	// Contract: one validation error names every missing variable so the
	// user can fix them in a single pass.
	err := Config{}.Validate()
	require.ErrorIs(t, err, ErrCredentialsMissing)
	assert.Contains(t, err.Error(), "JIRA_URL")
	assert.Contains(t, err.Error(), "JIRA_EMAIL")
	assert.Contains(t, err.Error(), "JIRA_API_TOKEN")

	cfg := Config{URL: "https://x.example", Email: "a@b.c", APIToken: "tok"}
	assert.NoError(t, cfg.Validate())
}

func Test_Format_RedactsAPIToken(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.URL = "https://x.example"
	cfg.Email = "a@b.c"
	cfg.APIToken = "super-secret"

	out, err := Format(cfg)
	require.NoError(t, err)

	assert.Contains(t, out, "[redacted]")
	assert.NotContains(t, out, "super-secret")
	assert.Contains(t, out, "https://x.example")
}
