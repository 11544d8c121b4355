package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wentf9/xdeploy/pkg/deploy"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootOpts = NewGlobalOptions()
	root := NewCmdRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootRegistersEveryRecipe(t *testing.T) {
	root := NewCmdRoot()
	for _, r := range deploy.Recipes() {
		c, _, err := root.Find([]string{r.Name})
		require.NoError(t, err, r.Name)
		require.Equal(t, r.Name, c.Name())
	}
}

func TestRecipeRequiresRoles(t *testing.T) {
	_, err := execute(t, "deploy-backend")
	require.ErrorContains(t, err, "-R")
}

func TestRecipePositionalArgs(t *testing.T) {
	_, err := execute(t, "manage")
	require.Error(t, err)
	_, err = execute(t, "create-app", "a", "b")
	require.Error(t, err)
}

func TestQueueTasksListsShippedTasks(t *testing.T) {
	out, err := execute(t, "queue", "tasks")
	require.NoError(t, err)
	require.Contains(t, out, "ops.backup")
	require.Contains(t, out, "ops.ping")
	require.Contains(t, out, "ops.check")
}

func TestSettingsShowMasksSecrets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(`project: shop
redis:
  password: s3cret
mysql:
  password: dbpass
`), 0644))

	out, err := execute(t, "--config-dir", dir, "--env", "dev", "settings", "show")
	require.NoError(t, err)
	require.Contains(t, out, "# base")
	require.Contains(t, out, "project: shop")
	require.Contains(t, out, "******")
	require.NotContains(t, out, "s3cret")
	require.NotContains(t, out, "dbpass")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "Version:")
	out, err = execute(t, "--version")
	require.NoError(t, err)
	require.Contains(t, out, "xdeploy dev")
}
