package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalRun(t *testing.T) {
	e := NewLocalExecutor()
	out, err := e.Run(context.Background(), "echo hello && echo err >&2")
	require.NoError(t, err)
	require.Contains(t, out, "hello")
	require.Contains(t, out, "err")
}

func TestLocalRunFailureKeepsOutput(t *testing.T) {
	out, err := NewLocalExecutor().Run(context.Background(), "echo boom; exit 3")
	require.Error(t, err)
	require.Equal(t, "boom\n", out)
}

func TestLocalWithEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	e := &LocalExecutor{Dir: dir}
	out, err := e.WithEnv("REUSE_DB=1").Run(context.Background(), "echo $REUSE_DB; pwd")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, "1", lines[0])
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	require.Equal(t, resolved, lines[1])
	require.Empty(t, e.Env)
}

func TestLocalCopy(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.sql"), []byte("x"), 0644))
	e := &LocalExecutor{Dir: dir}
	require.NoError(t, e.Copy(context.Background(), filepath.Join(dir, "a.sql"), "b.sql"))
	data, err := os.ReadFile(filepath.Join(dir, "b.sql"))
	require.NoError(t, err)
	require.Equal(t, "x", string(data))
}

func TestQuoteAndInDir(t *testing.T) {
	require.Equal(t, "/data/opt/app", Quote("/data/opt/app"))
	require.Equal(t, "'a b'", Quote("a b"))
	require.Equal(t, `'it'"'"'s'`, Quote("it's"))
	require.Equal(t, "''", Quote(""))
	require.Equal(t, "cd /srv && ls", InDir("/srv", "ls"))
	require.Equal(t, "ls", InDir("", "ls"))
}
