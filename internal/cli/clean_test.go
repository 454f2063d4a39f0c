package cli

// Test Plan for Clean Command:
// - cleanTargets uses the cache of download.server when one is configured
// - cleanTargets falls back to the default symbol cache
// - clean removes every existing target and reports it
// - clean ignores missing targets and says there is nothing to clean
// - quiet suppresses all output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/pdblister/internal/config"
)

func TestCleanTargets_UsesServerCache(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Download.Server = "SRV*/tmp/syms*https://example.com/symbols"

	targets := cleanTargets(cfg)
	require.Len(t, targets, 3)
	assert.Equal(t, "manifest", targets[0].path)
	assert.Equal(t, "/tmp/syms", targets[1].path)
	assert.Equal(t, "filestore", targets[2].path)
}

func TestCleanTargets_DefaultCache(t *testing.T) {
	t.Parallel()

	targets := cleanTargets(config.Default())
	require.Len(t, targets, 3)
	assert.Equal(t, config.DefaultSymbolCache, targets[1].path)
}

func TestClean_RemovesExistingTargets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "manifest")
	cache := filepath.Join(dir, "symbols")
	require.NoError(t, os.WriteFile(manifestPath, []byte("a.pdb,X,1\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(cache, "a.pdb", "sig"), 0755))

	targets := []cleanTarget{
		{label: "manifest", path: manifestPath},
		{label: "symbol cache", path: cache},
		{label: "filestore", path: filepath.Join(dir, "filestore")},
	}

	var out bytes.Buffer
	require.NoError(t, clean(&out, targets, false))

	assert.NoFileExists(t, manifestPath)
	assert.NoDirExists(t, cache)
	assert.Contains(t, out.String(), "Removed manifest")
	assert.Contains(t, out.String(), "Removed symbol cache")
	assert.NotContains(t, out.String(), "filestore")
}

func TestClean_NothingToClean(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	targets := []cleanTarget{{label: "manifest", path: filepath.Join(dir, "manifest")}}

	var out bytes.Buffer
	require.NoError(t, clean(&out, targets, false))
	assert.Equal(t, "Nothing to clean\n", out.String())
}

func TestClean_Quiet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	var out bytes.Buffer
	require.NoError(t, clean(&out, []cleanTarget{{label: "manifest", path: path}}, true))
	assert.Empty(t, out.String())
	assert.NoFileExists(t, path)
}
