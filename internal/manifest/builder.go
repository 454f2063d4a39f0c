package manifest

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/pdblister/internal/pdbid"
	"github.com/mvp-joe/pdblister/internal/pe"
)

// Result summarizes one manifest build.
type Result struct {
	// Identities holds one entry per file with a PDB reference, in input order.
	Identities []pdbid.Identity

	Files      int // candidate files examined
	NoIdentity int // files without a usable CodeView record
	Errors     int // files that could not be read
	CacheHits  int
}

// Lines renders the identities as manifest lines.
func (r *Result) Lines() []string {
	lines := make([]string, len(r.Identities))
	for i, id := range r.Identities {
		lines[i] = id.String()
	}
	return lines
}

// Options configures a Builder.
type Options struct {
	Workers  int // defaults to runtime.NumCPU()
	Cache    *IdentityCache
	Progress ProgressReporter
	Logger   zerolog.Logger
}

// Builder extracts PDB identities from a list of files.
type Builder struct {
	workers  int
	cache    *IdentityCache
	progress ProgressReporter
	logger   zerolog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	progress := opts.Progress
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}
	return &Builder{
		workers:  workers,
		cache:    opts.Cache,
		progress: progress,
		logger:   opts.Logger,
	}
}

type fileResult struct {
	id     pdbid.Identity
	err    error
	cached bool
}

// Build parses every path on a bounded worker pool. Files without an identity
// are dropped and counted; only context cancellation fails the build.
func (b *Builder) Build(ctx context.Context, paths []string) (*Result, error) {
	b.progress.OnBuildStart(len(paths))

	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)

	for i, path := range paths {
		i, path := i, path
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.parse(path)
			b.progress.OnFileParsed(path, results[i].err == nil)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("manifest build interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("manifest build interrupted: %w", err)
	}

	result := &Result{Files: len(paths)}
	for i, r := range results {
		if r.cached {
			result.CacheHits++
		}
		switch {
		case r.err == nil:
			result.Identities = append(result.Identities, r.id)
		case IsNoIdentity(r.err):
			result.NoIdentity++
			b.logger.Trace().Str("path", paths[i]).Err(r.err).Msg("no identity")
		default:
			result.Errors++
			b.logger.Debug().Str("path", paths[i]).Err(r.err).Msg("failed to read file")
		}
	}

	b.progress.OnBuildComplete(result)
	return result, nil
}

func (b *Builder) parse(path string) fileResult {
	info, err := os.Stat(path)
	if err != nil {
		return fileResult{err: err}
	}

	if b.cache != nil {
		if r, ok := b.cache.Lookup(path, info); ok {
			return fileResult{id: r.ID, err: r.Err, cached: true}
		}
	}

	id, err := pdbid.ExtractFile(path)
	if b.cache != nil && (err == nil || IsNoIdentity(err)) {
		b.cache.Store(path, info, id, err)
	}
	return fileResult{id: id, err: err}
}

// IsNoIdentity reports whether err means the file simply has no PDB
// reference, as opposed to an I/O failure.
func IsNoIdentity(err error) bool {
	return pe.IsFormatError(err)
}
