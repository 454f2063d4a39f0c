// Package discovery enumerates candidate executable files under a root.
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Discovery walks a directory tree and keeps files matching the include
// patterns and none of the ignore patterns. Patterns are matched against the
// slash-separated path relative to the root.
type Discovery struct {
	rootDir        string
	includePattern []compiledPattern
	ignorePatterns []compiledPattern
	logger         zerolog.Logger
}

// New creates a discovery instance. An empty include list matches everything.
func New(rootDir string, include, ignore []string, logger zerolog.Logger) (*Discovery, error) {
	d := &Discovery{
		rootDir: rootDir,
		logger:  logger,
	}

	if len(include) == 0 {
		include = []string{"**"}
	}

	var err error
	if d.includePattern, err = compile(include); err != nil {
		return nil, err
	}
	if d.ignorePatterns, err = compile(ignore); err != nil {
		return nil, err
	}
	return d, nil
}

func compile(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, compiledPattern{pattern: pattern, glob: g})
	}
	return out, nil
}

// Files walks the tree in lexical order and returns matching regular files.
//
// Unreadable directories are skipped rather than failing the walk, so a scan
// of a system directory is not derailed by permission errors.
func (d *Discovery) Files() ([]string, error) {
	files := []string{}

	err := filepath.WalkDir(d.rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == d.rootDir {
				return err
			}
			d.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(d.rootDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if entry.IsDir() {
			if relPath != "." && d.shouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		if d.shouldIgnore(relPath) {
			return nil
		}
		if d.Match(relPath) {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

// Match reports whether a root-relative, slash-separated path matches the
// include patterns.
func (d *Discovery) Match(relPath string) bool {
	return matchesAnyPattern(relPath, d.includePattern)
}

// MatchPath is Match for an absolute or root-joined path. Paths outside the
// root never match.
func (d *Discovery) MatchPath(path string) bool {
	relPath, err := filepath.Rel(d.rootDir, path)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	return !d.shouldIgnore(relPath) && d.Match(relPath)
}

// shouldIgnore checks if a path matches any ignore pattern.
func (d *Discovery) shouldIgnore(relPath string) bool {
	if matchesAnyPattern(relPath, d.ignorePatterns) {
		return true
	}

	// A directory "obj" should match pattern "obj/**".
	return matchesAnyPattern(relPath+"/**", d.ignorePatterns)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// Make "**/*.dll" match "foo.dll" at the root as well as "sub/foo.dll".
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if strings.HasPrefix(cp.pattern, "**/") {
				simplified := strings.TrimPrefix(cp.pattern, "**/")
				if g, err := glob.Compile(simplified, '/'); err == nil && g.Match(path) {
					return true
				}
			}
		}
	}

	return false
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
