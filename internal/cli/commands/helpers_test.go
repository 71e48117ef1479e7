package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapexplore/internal/cli/config"
	"github.com/leapstack-labs/leapexplore/internal/cli/testutil"
)

// loadProject creates a test project and makes its configuration current.
func loadProject(t *testing.T) *testutil.Project {
	t.Helper()
	project := testutil.SetupTestProject(t)
	_, err := config.LoadConfig(project.ConfigPath, nil)
	require.NoError(t, err)
	t.Cleanup(config.ResetConfig)
	return project
}

// executeCommand runs cmd with args and returns stdout and stderr.
func executeCommand(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := cmd.ExecuteContext(config.WithLogger(context.Background(), logger))
	return stdout.String(), stderr.String(), err
}

// newTestCommandContext opens the current project's history and datasources.
func newTestCommandContext(t *testing.T) *CommandContext {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	c, cleanup, err := NewCommandContext(cmd)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return c
}
