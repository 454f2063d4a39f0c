package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/pdblister/internal/pe/petest"
)

func TestKey(t *testing.T) {
	t.Parallel()

	path := petest.WriteFile(t, t.TempDir(), "ntdll.dll", petest.Image{
		TimeDateStamp: 0x0badf00d,
		SizeOfImage:   0x1f0000,
	})

	key, err := Key(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("ntdll.dll", "0badf00d1f0000", "ntdll.dll"), key)
}

func TestKey_NotPE(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	_, err := Key(path)
	assert.Error(t, err)
}

func TestPopulate(t *testing.T) {
	t.Parallel()

	// Setup
	src := t.TempDir()
	a := petest.WriteFile(t, src, "a.exe", petest.Image{TimeDateStamp: 1, SizeOfImage: 0x3000})
	b := petest.WriteFile(t, src, "b.dll", petest.Image{Machine: petest.MachineI386, TimeDateStamp: 2, SizeOfImage: 0x4000})
	txt := filepath.Join(src, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("not pe"), 0644))
	missing := filepath.Join(src, "gone.dll")

	root := filepath.Join(t.TempDir(), "filestore")
	store := New(root, nil, zerolog.Nop())

	// Execute
	result, err := store.Populate(context.Background(), []string{a, b, txt, missing})
	require.NoError(t, err)

	// Verify
	assert.Equal(t, Result{Files: 4, Copied: 2, NotPE: 1, Failed: 1}, *result)

	want, err := os.ReadFile(a)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(root, "a.exe", "000000013000", "a.exe"))
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.FileExists(t, filepath.Join(root, "b.dll", "000000024000", "b.dll"))

	// A second run copies nothing.
	again, err := store.Populate(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Zero(t, again.Copied)
}

func TestPopulate_Cancelled(t *testing.T) {
	t.Parallel()

	a := petest.WriteFile(t, t.TempDir(), "a.exe", petest.Image{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(t.TempDir(), nil, zerolog.Nop()).Populate(ctx, []string{a})
	assert.ErrorIs(t, err, context.Canceled)
}
