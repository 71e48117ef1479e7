// Package main provides tests for the LeapExplore CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/cli"
	"github.com/leapstack-labs/leapexplore/internal/cli/config"
	"github.com/leapstack-labs/leapexplore/internal/cli/testutil"
)

// run executes the root command with args and returns combined output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	output, err := run(t, "", "version")
	require.NoError(t, err)
	testutil.AssertContains(t, output, "LeapExplore v"+cli.Version)
	testutil.AssertContains(t, output, "Adapters: duckdb, postgres")
}

func TestHelpCommand(t *testing.T) {
	output, err := run(t, "", "--help")
	require.NoError(t, err)

	for _, expected := range []string{"serve", "query", "history", "datasources", "completion", "--provisioning-dir"} {
		testutil.AssertContains(t, output, expected)
	}
}

func TestQueryThenHistory(t *testing.T) {
	project := testutil.SetupTestProject(t)

	output, err := run(t, "", "--config", project.ConfigPath, "query", "-f", "csv", "SELECT customer FROM orders WHERE id = 3")
	require.NoError(t, err)
	assert.Equal(t, "customer\n\"carol, jr\"\n", output)

	output, err = run(t, "", "--config", project.ConfigPath, "-o", "csv", "history", "list")
	require.NoError(t, err)
	testutil.AssertContains(t, output, "Warehouse")
	testutil.AssertContains(t, output, "SELECT customer FROM orders WHERE id = 3")

	// Another org sees nothing.
	output, err = run(t, "", "--config", project.ConfigPath, "--org", "2", "history", "list")
	require.NoError(t, err)
	assert.Equal(t, "(0 rows)\n", output)
}

func TestQueryFromStdin(t *testing.T) {
	project := testutil.SetupTestProject(t)

	output, err := run(t, "SELECT sum(amount) AS total FROM orders", "--config", project.ConfigPath, "-o", "md", "query")
	require.NoError(t, err)
	testutil.AssertContains(t, output, "| total |")
	testutil.AssertContains(t, output, "| 35.75 |")
}

func TestDatasourcesCommand(t *testing.T) {
	project := testutil.SetupTestProject(t)

	output, err := run(t, "", "--config", project.ConfigPath, "datasources", "--check")
	require.NoError(t, err)
	testutil.AssertContains(t, output, "warehouse")
	testutil.AssertContains(t, output, "scratch")
	testutil.AssertNotContains(t, output, "failed")

	output, err = run(t, "", "--config", project.ConfigPath, "--org", "2", "ds")
	require.NoError(t, err)
	assert.Equal(t, "(0 rows)\n", output)
}

func TestProvisioningDir(t *testing.T) {
	project := testutil.SetupTestProject(t)
	provDir := filepath.Join(project.Dir, "provisioning")
	require.NoError(t, os.MkdirAll(provDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(provDir, "extra.yaml"), []byte(`apiVersion: 1
datasources:
  - uid: extra
    name: Extra
    type: duckdb
    database: ":memory:"
`), 0o600))

	output, err := run(t, "", "--config", project.ConfigPath, "--provisioning-dir", provDir, "-o", "csv", "datasources")
	require.NoError(t, err)
	testutil.AssertContains(t, output, "extra,Extra,duckdb,false")
	testutil.AssertContains(t, output, "warehouse,Warehouse,duckdb,true")
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leapexplore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("org_id: -1\n"), 0o600))

	_, err := run(t, "", "--config", path, "datasources")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "org_id")
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			output, err := run(t, "", "completion", shell)
			require.NoError(t, err)
			testutil.AssertContains(t, output, "leapexplore")
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := run(t, "", "unknown-command")
	require.Error(t, err)
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
