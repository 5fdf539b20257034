package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCrawler_Walk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"lodash":"4.17.21"}}`)
	writeFile(t, root, "src/index.js", "const stripe = require('stripe')\n")
	writeFile(t, root, "node_modules/lodash/index.js", "module.exports = {}\n")
	writeFile(t, root, ".gitignore", "generated/\n*.log\n")
	writeFile(t, root, "generated/out.js", "x\n")
	writeFile(t, root, "debug.log", "noise\n")
	writeFile(t, root, "big.txt", strings.Repeat("a", 2048))
	writeFile(t, root, "blob.bin", "ab\x00cd")

	c := NewCrawler(WithMaxFileSize(1024))
	files, stats, err := c.Collect(context.Background(), root)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}

	t.Run("Supplies relevant files with relative slash paths", func(t *testing.T) {
		assert.Contains(t, paths, "package.json")
		assert.Contains(t, paths, "src/index.js")
	})

	t.Run("Honors default and repository ignores", func(t *testing.T) {
		assert.NotContains(t, paths, "node_modules/lodash/index.js")
		assert.NotContains(t, paths, "generated/out.js")
		assert.NotContains(t, paths, "debug.log")
	})

	t.Run("Skips and counts oversized files", func(t *testing.T) {
		assert.NotContains(t, paths, "big.txt")
		assert.Equal(t, 1, stats.SkippedOversize)
	})

	t.Run("Skips binary content", func(t *testing.T) {
		assert.NotContains(t, paths, "blob.bin")
		assert.Equal(t, 1, stats.SkippedBinary)
	})
}

func TestCrawler_MissingRootIsFatal(t *testing.T) {
	c := NewCrawler()
	_, _, err := c.Collect(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRootNotFound))
}

func TestCrawler_CallbackErrorStopsWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "a")
	writeFile(t, root, "b.txt", "b")

	stop := errors.New("stop")
	calls := 0
	_, err := NewCrawler().Walk(context.Background(), root, func(File) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
