package discovery

// Test Plan for Discovery:
// - Files returns every regular file when no include pattern is given
// - Files honors include patterns with brace alternatives
// - "**/" patterns also match files at the root
// - ignore patterns skip whole directories
// - Files fails when the root does not exist
// - MatchPath rejects paths outside the root

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files ...string) string {
	t.Helper()

	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
	return root
}

func relAll(t *testing.T, root string, paths []string) []string {
	t.Helper()

	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestFiles_AllByDefault(t *testing.T) {
	t.Parallel()

	root := makeTree(t, "a.exe", "sub/b.dll", "sub/deeper/c.txt")

	d, err := New(root, nil, nil, zerolog.Nop())
	require.NoError(t, err)

	files, err := d.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.exe", "sub/b.dll", "sub/deeper/c.txt"}, relAll(t, root, files))
}

func TestFiles_IncludePatterns(t *testing.T) {
	t.Parallel()

	root := makeTree(t, "a.exe", "notes.txt", "sys/drv.sys", "sys/lib.dll", "sys/readme.md")

	d, err := New(root, []string{"**/*.{exe,dll,sys}"}, nil, zerolog.Nop())
	require.NoError(t, err)

	files, err := d.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.exe", "sys/drv.sys", "sys/lib.dll"}, relAll(t, root, files))
}

func TestFiles_IgnoreDirectories(t *testing.T) {
	t.Parallel()

	root := makeTree(t, "bin/a.dll", "obj/b.dll", "obj/nested/c.dll", "winsxs/d.dll")

	d, err := New(root, []string{"**/*.dll"}, []string{"obj/**", "winsxs"}, zerolog.Nop())
	require.NoError(t, err)

	files, err := d.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"bin/a.dll"}, relAll(t, root, files))
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir(), []string{"[unterminated"}, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestFiles_MissingRoot(t *testing.T) {
	t.Parallel()

	d, err := New(filepath.Join(t.TempDir(), "missing"), nil, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = d.Files()
	assert.Error(t, err)
}

func TestMatchPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	d, err := New(root, []string{"**/*.dll"}, []string{"obj/**"}, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, d.MatchPath(filepath.Join(root, "x.dll")))
	assert.True(t, d.MatchPath(filepath.Join(root, "a", "x.dll")))
	assert.False(t, d.MatchPath(filepath.Join(root, "a", "x.txt")))
	assert.False(t, d.MatchPath(filepath.Join(root, "obj", "x.dll")))
	assert.False(t, d.MatchPath(filepath.Join(filepath.Dir(root), "x.dll")))
}
