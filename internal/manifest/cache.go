package manifest

import (
	"os"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/pdblister/internal/pdbid"
)

// fingerprint identifies one version of a file on disk.
type fingerprint struct {
	size    int64
	modTime int64
}

func fingerprintOf(info os.FileInfo) fingerprint {
	return fingerprint{size: info.Size(), modTime: info.ModTime().UnixNano()}
}

// CachedResult is a remembered extraction: an identity, or the format error
// explaining why the file has none.
type CachedResult struct {
	ID  pdbid.Identity
	Err error
}

type cacheEntry struct {
	fp fingerprint
	CachedResult
}

// IdentityCache remembers extraction results per path so repeated builds
// (watch mode) only reparse files whose size or modification time changed.
// Both identities and "no PDB here" outcomes are cached; I/O failures are not.
type IdentityCache struct {
	cache otter.Cache[string, cacheEntry]
}

// NewIdentityCache creates a cache holding up to capacity paths.
func NewIdentityCache(capacity int) (*IdentityCache, error) {
	c, err := otter.MustBuilder[string, cacheEntry](capacity).
		CollectStats().
		Build()
	if err != nil {
		return nil, err
	}
	return &IdentityCache{cache: c}, nil
}

// Lookup returns the cached result for path if info still matches it.
func (c *IdentityCache) Lookup(path string, info os.FileInfo) (CachedResult, bool) {
	e, ok := c.cache.Get(path)
	if !ok || e.fp != fingerprintOf(info) {
		return CachedResult{}, false
	}
	return e.CachedResult, true
}

// Store records the extraction result for path.
func (c *IdentityCache) Store(path string, info os.FileInfo, id pdbid.Identity, err error) {
	c.cache.Set(path, cacheEntry{fp: fingerprintOf(info), CachedResult: CachedResult{ID: id, Err: err}})
}

// Invalidate drops path from the cache.
func (c *IdentityCache) Invalidate(path string) {
	c.cache.Delete(path)
}

// Len returns the number of cached paths.
func (c *IdentityCache) Len() int {
	return c.cache.Size()
}

// Hits returns how often a path was found, including entries then rejected
// as stale.
func (c *IdentityCache) Hits() int64 {
	return c.cache.Stats().Hits()
}

// Close releases the cache's background resources.
func (c *IdentityCache) Close() {
	c.cache.Close()
}
