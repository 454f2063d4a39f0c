package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for FileWatcher:
// - New fails for a missing root
// - a single file change fires one callback after the debounce period
// - rapid changes to several files are batched, sorted and deduplicated
// - the matcher filters out uninteresting files
// - deleting a matching file is reported
// - a new directory is watched and reported
// - Stop is idempotent and safe to call concurrently, even without Start
// - context cancellation stops the event loop

const testDebounce = 100 * time.Millisecond

func isBinary(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".exe" || ext == ".dll" || ext == ".sys"
}

// collector records callback batches.
type collector struct {
	mu      sync.Mutex
	batches [][]string
	ch      chan struct{}
}

func newCollector() *collector {
	return &collector{ch: make(chan struct{}, 16)}
}

func (c *collector) callback(files []string) {
	c.mu.Lock()
	c.batches = append(c.batches, files)
	c.mu.Unlock()
	c.ch <- struct{}{}
}

func (c *collector) wait(t *testing.T) []string {
	t.Helper()
	select {
	case <-c.ch:
	case <-time.After(3 * time.Second):
		t.Fatal("callback not called before timeout")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[len(c.batches)-1]
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func startWatcher(t *testing.T, root string) *collector {
	t.Helper()

	w, err := New(root, isBinary, testDebounce, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Stop() })

	c := newCollector()
	require.NoError(t, w.Start(context.Background(), c.callback))

	// Give fsnotify a moment to settle.
	time.Sleep(50 * time.Millisecond)
	return c
}

func TestNew_MissingRoot(t *testing.T) {
	t.Parallel()

	w, err := New(filepath.Join(t.TempDir(), "missing"), nil, 0, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestFileWatcher_SingleChange(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := startWatcher(t, root)

	path := filepath.Join(root, "a.dll")
	require.NoError(t, os.WriteFile(path, []byte("MZ"), 0644))

	assert.Equal(t, []string{path}, c.wait(t))
}

func TestFileWatcher_BatchesAndDeduplicates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := startWatcher(t, root)

	b := filepath.Join(root, "b.exe")
	a := filepath.Join(root, "a.dll")
	require.NoError(t, os.WriteFile(b, []byte("v1"), 0644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(a, []byte("v1"), 0644))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, os.WriteFile(b, []byte("v2"), 0644))

	assert.Equal(t, []string{a, b}, c.wait(t))

	// Nothing else arrives once the batch is flushed.
	time.Sleep(3 * testDebounce)
	assert.Equal(t, 1, c.count())
}

func TestFileWatcher_MatcherFilters(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	time.Sleep(20 * time.Millisecond)
	sys := filepath.Join(root, "drv.sys")
	require.NoError(t, os.WriteFile(sys, []byte("x"), 0644))

	assert.Equal(t, []string{sys}, c.wait(t))
}

func TestFileWatcher_Delete(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "gone.dll")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	c := startWatcher(t, root)
	require.NoError(t, os.Remove(path))

	assert.Contains(t, c.wait(t), path)
}

func TestFileWatcher_NewDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	c := startWatcher(t, root)

	dir := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(dir, 0755))
	assert.Contains(t, c.wait(t), dir)

	// Files in the new directory are now watched too.
	path := filepath.Join(dir, "x.dll")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.Contains(t, c.wait(t), path)
}

func TestFileWatcher_StopWithoutStart(t *testing.T) {
	t.Parallel()

	w, err := New(t.TempDir(), nil, 0, zerolog.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Stop())
		}()
	}
	wg.Wait()
}

func TestFileWatcher_ContextCancellation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, err := New(root, isBinary, testDebounce, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c := newCollector()
	require.NoError(t, w.Start(ctx, c.callback))
	cancel()

	fw := w.(*fileWatcher)
	select {
	case <-fw.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("event loop did not exit")
	}
	require.NoError(t, w.Stop())
	assert.Zero(t, c.count())
}
