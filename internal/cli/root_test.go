package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/internal/testutil"
)

const basicRule = `[rule]
id = "frontmatter-required.basic"
name = "Required frontmatter"
category = "metadata"

[settings]
required_fields = ["title"]
`

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"lint", "rules", "health", "version", "completion"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "verbose", "log-format", "log-level", "rules-path", "profile", "ignore", "extensions", "parallel", "max-concurrency", "task-timeout"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestRootCommand_ConfigFlagsReachTheEngine(t *testing.T) {
	vault := testutil.WriteVault(t, map[string]string{
		"vaultlint.yaml": `rules_path: rules
active_profile: default
profiles:
  strict:
    description: publishing
    rules_path: strict-rules
`,
		"rules/default/enabled/basic.toml": basicRule,
		"notes/a.md":                       "# A\n",
		"drafts/b.md":                      "# B\n",
	})

	out, _, err := run(t, "lint", vault)
	require.NoError(t, err)
	assert.Contains(t, out, "notes/a.md")
	assert.Contains(t, out, "drafts/b.md")

	out, _, err = run(t, "lint", "--ignore", "drafts", vault)
	require.NoError(t, err)
	assert.Contains(t, out, "notes/a.md")
	assert.NotContains(t, out, "drafts/b.md")

	out, _, err = run(t, "lint", "--parallel", "--max-concurrency", "2", vault)
	require.NoError(t, err)
	assert.Contains(t, out, "drafts/b.md")

	// The strict profile has no enabled directory.
	_, _, err = run(t, "lint", "--profile", "strict", vault)
	require.Error(t, err)

	_, _, err = run(t, "lint", "--profile", "missing", vault)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestRootCommand_ExplicitConfig(t *testing.T) {
	dir := testutil.WriteVault(t, map[string]string{
		"elsewhere/custom.yaml":            "rules_path: ../rules\n",
		"rules/default/enabled/basic.toml": basicRule,
		"vault/a.md":                       "# A\n",
	})

	out, _, err := run(t, "lint", "--config", dir+"/elsewhere/custom.yaml", dir+"/vault")
	require.NoError(t, err)
	assert.Contains(t, out, "[frontmatter-required.basic]")

	_, _, err = run(t, "lint", "--config", dir+"/absent.yaml", dir+"/vault")
	require.Error(t, err)
}

func TestRootCommand_Logging(t *testing.T) {
	vault := testutil.WriteVault(t, map[string]string{
		"vaultlint.yaml":                   "rules_path: rules\n",
		"rules/default/enabled/basic.toml": basicRule,
		"a.md":                             "# A\n",
	})

	_, stderr, err := run(t, "lint", "--log-format", "json", "--log-level", "info", vault)
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"vault processed"`)

	_, stderr, err = run(t, "lint", "--log-level", "error", vault)
	require.NoError(t, err)
	assert.NotContains(t, stderr, "vault processed")

	_, _, err = run(t, "lint", "--log-format", "xml", vault)
	require.Error(t, err)

	_, _, err = run(t, "lint", "--log-level", "loud", vault)
	require.Error(t, err)
}

func TestRootCommand_Version(t *testing.T) {
	out, _, err := run(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "vaultlint "+Version+"\n", out)
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			out, _, err := run(t, "completion", shell)
			require.NoError(t, err)
			assert.Contains(t, out, "vaultlint")
		})
	}

	_, _, err := run(t, "completion", "tcsh")
	require.Error(t, err)
}
