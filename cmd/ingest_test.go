package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbuddy/src/fsutil"
)

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.md", "c.pdf", "nested/d.TXT"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("text"), 0o644))
	}
	single := filepath.Join(dir, "c.pdf")

	ingestExtensions = []string{".txt", ".md"}
	files, err := collectFiles(fsutil.NewLocalFileStore(), []string{dir, single})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "nested/d.TXT"),
		single,
	}, files)

	_, err = collectFiles(fsutil.NewLocalFileStore(), []string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
