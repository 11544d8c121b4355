package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "deploy.yaml")
	require.NoError(t, WriteAtomic(path, []byte("hosts: {}\n"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hosts: {}\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestWriteAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a much longer old body\n"), 0644))

	require.NoError(t, WriteAtomic(path, []byte("new\n"), 0600))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteAtomicEmptyContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, WriteAtomic(path, nil, 0644))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}
