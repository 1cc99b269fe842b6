package cli_test

import (
	"bytes"
	"testing"

	"storysync/internal/cli"
)

func Test_Bare_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	// Call Run directly without test helper (which adds --cwd)
	var stdout, stderr bytes.Buffer

	exitCode := cli.Run(nil, &stdout, &stderr, []string{"storysync"}, nil, nil)

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr.String(), ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout.String(), "storysync - sync user stories from documents to Jira")
	cli.AssertContains(t, stdout.String(), "--cwd")
	cli.AssertContains(t, stdout.String(), "sync <file> [flags]")
}

func Test_Main_Help_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		args []string
	}{
		{name: "long flag", args: []string{"--help"}},
		{name: "short flag", args: []string{"-h"}},
		{name: "help command", args: []string{"help"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stdout, stderr, exitCode := c.Run(tt.args...)

			if got, want := exitCode, 0; got != want {
				t.Errorf("exitCode=%d, want=%d", got, want)
			}

			if got, want := stderr, ""; got != want {
				t.Errorf("stderr=%q, want=%q", got, want)
			}

			cli.AssertContains(t, stdout, "storysync - sync user stories from documents to Jira")
			cli.AssertContains(t, stdout, "sync <file> [flags]")
			cli.AssertContains(t, stdout, "analyze <file> [flags]")
			cli.AssertContains(t, stdout, "validate <file>")
			cli.AssertContains(t, stdout, "export <file> [flags]")
		})
	}
}

func Test_No_Command_With_Flags_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run()

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr, ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout, "Usage: storysync [options] <command> [args]")
}

func Test_Invalid_Global_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--invalid-flag", "validate")

	if got, want := exitCode, 2; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown flag")
	cli.AssertContains(t, stderr, "--invalid-flag")
}

func Test_Global_Flag_Missing_Argument_When_Invoked(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		flag string
	}{
		{name: "config", flag: "--config"},
		{name: "env file", flag: "--env-file"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			stdout, stderr, exitCode := c.Run(tt.flag)

			if got, want := exitCode, 2; got != want {
				t.Errorf("exitCode=%d, want=%d", got, want)
			}

			if got, want := stdout, ""; got != want {
				t.Errorf("stdout=%q, want=%q", got, want)
			}

			cli.AssertContains(t, stderr, "flag requires an argument")
			cli.AssertContains(t, stderr, tt.flag)
		})
	}
}

func Test_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("frobnicate")

	if got, want := exitCode, 2; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
	cli.AssertContains(t, stderr, "Usage: storysync [options] <command> [args]")
}

func Test_Explicit_Config_File_Missing_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("--config", "nope.jsonc", "config")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "config file not found")
	cli.AssertContains(t, stderr, "nope.jsonc")
}

func Test_Explicit_Env_File_Missing_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	_, stderr, exitCode := c.Run("--env-file", "missing.env", "config")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "env file not found")
	cli.AssertContains(t, stderr, "missing.env")
}

func Test_Invalid_Config_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("storysync.jsonc", `{"project_key": }`)

	_, stderr, exitCode := c.Run("config")

	if got, want := exitCode, 1; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	cli.AssertContains(t, stderr, "invalid config file")
}

func Test_Help_Works_Despite_Broken_Config_File(t *testing.T) {
	t.Parallel()

	// Contract: help needs no configuration; a malformed config file in
	// the working directory must not stop it.
	c := cli.NewCLI(t)
	c.WriteFile("storysync.jsonc", `{"project_key": }`)

	for _, tt := range []struct {
		name string
		args []string
		want string
	}{
		{name: "help command", args: []string{"help"}, want: "Usage: storysync [options] <command> [args]"},
		{name: "help flag", args: []string{"--help"}, want: "Usage: storysync [options] <command> [args]"},
		{name: "command help", args: []string{"help", "sync"}, want: "Usage: storysync sync <file> [flags]"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stdout, stderr, exitCode := c.Run(tt.args...)

			if got, want := exitCode, 0; got != want {
				t.Errorf("exitCode=%d, want=%d (stderr=%q)", got, want, stderr)
			}

			cli.AssertContains(t, stdout, tt.want)
		})
	}
}

func Test_Help_For_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("help", "sync")

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr, ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout, "Usage: storysync sync <file> [flags]")
	cli.AssertContains(t, stdout, "--execute")
	cli.AssertContains(t, stdout, "--phase")
}

func Test_Help_For_Unknown_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("help", "frobnicate")

	if got, want := exitCode, 2; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stdout, ""; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "unknown command: frobnicate")
}

func Test_Command_Help_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("sync", "--help")

	if got, want := exitCode, 0; got != want {
		t.Errorf("exitCode=%d, want=%d", got, want)
	}

	if got, want := stderr, ""; got != want {
		t.Errorf("stderr=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stdout, "Usage: storysync sync <file> [flags]")
}

func Test_Version_Command_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("version")

	if got, want := stdout, "storysync 0.1.0"; got != want {
		t.Errorf("stdout=%q, want=%q", got, want)
	}
}
