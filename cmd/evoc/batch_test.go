package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "nested/b.yaml", "nested/deep/c.yaml", "notes.txt"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("title: x\n"), 0o644))
	}

	files, err := expandPatterns([]string{
		filepath.Join(dir, "**", "*.yaml"),
		filepath.Join(dir, "a.yaml"),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.yaml"),
		filepath.Join(dir, "nested", "deep", "c.yaml"),
	}, files)
}

func TestExpandPatternsNoMatch(t *testing.T) {
	files, err := expandPatterns([]string{filepath.Join(t.TempDir(), "*.yaml")})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("v3")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = parseVersion("2")
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = parseVersion("v0")
	assert.Error(t, err)
	_, err = parseVersion("latest")
	assert.Error(t, err)
}
