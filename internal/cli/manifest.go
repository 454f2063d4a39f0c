package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/pdblister/internal/config"
	"github.com/mvp-joe/pdblister/internal/discovery"
	"github.com/mvp-joe/pdblister/internal/manifest"
	"github.com/mvp-joe/pdblister/internal/watcher"
)

var (
	manifestOutput  string
	manifestWorkers int
	manifestWatch   bool
)

// identityCacheSize bounds the paths remembered between watch rebuilds.
const identityCacheSize = 1 << 18

// manifestCmd represents the manifest command
var manifestCmd = &cobra.Command{
	Use:   "manifest <path>",
	Short: "Generate a symchk-compatible manifest from a directory of PE files",
	Long: `Manifest recursively scans <path>, extracts the PDB reference of every
PE file that has one and writes one "<pdb>,<GUID><age>,1" line per file.

Files without a PDB reference are skipped silently. The output is a drop-in
replacement for 'symchk /r <path> /om manifest' and can be fed to
'symchk /im manifest' or 'pdblister download'.

Examples:
  # Write ./manifest for System32
  pdblister manifest C:\Windows\System32

  # Only look at common binary extensions, 16 parser goroutines
  pdblister manifest ./build --workers 16

  # Keep the manifest up to date as binaries change
  pdblister manifest ./build --watch
`,
	Args: cobra.ExactArgs(1),
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)
	manifestCmd.Flags().StringVarP(&manifestOutput, "output", "o", "", "manifest file to write (default from config, \"manifest\")")
	manifestCmd.Flags().IntVar(&manifestWorkers, "workers", 0, "parser goroutines (default one per CPU)")
	manifestCmd.Flags().BoolVarP(&manifestWatch, "watch", "w", false, "watch <path> and rebuild the manifest on changes")
}

func runManifest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if manifestOutput != "" {
		cfg.Manifest.Path = manifestOutput
	}
	if manifestWorkers > 0 {
		cfg.Manifest.Workers = manifestWorkers
	}

	job, err := newManifestJob(cfg, args[0], cmd.OutOrStdout(), quiet, newLogger(cfg, "manifest"))
	if err != nil {
		return err
	}
	defer job.close()

	if _, err := job.build(ctx); err != nil {
		return err
	}
	if !manifestWatch {
		return nil
	}
	return job.watch(ctx)
}

// manifestJob builds the manifest for one root, repeatedly in watch mode.
type manifestJob struct {
	root     string
	output   string
	out      io.Writer
	quiet    bool
	discover *discovery.Discovery
	cache    *manifest.IdentityCache
	builder  *manifest.Builder
	logger   zerolog.Logger
}

func newManifestJob(cfg *config.Config, root string, out io.Writer, quiet bool, logger zerolog.Logger) (*manifestJob, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if !discovery.Exists(root) {
		return nil, fmt.Errorf("path does not exist: %s", root)
	}
	output, err := filepath.Abs(cfg.Manifest.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Manifest.Path, err)
	}

	d, err := discovery.New(root, cfg.Discovery.Include, cfg.Discovery.Ignore, logger)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery patterns: %w", err)
	}

	cache, err := manifest.NewIdentityCache(identityCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity cache: %w", err)
	}

	return &manifestJob{
		root:     root,
		output:   output,
		out:      out,
		quiet:    quiet,
		discover: d,
		cache:    cache,
		builder: manifest.NewBuilder(manifest.Options{
			Workers:  cfg.Manifest.Workers,
			Cache:    cache,
			Progress: NewManifestProgress(out, quiet),
			Logger:   logger,
		}),
		logger: logger,
	}, nil
}

func (j *manifestJob) close() {
	j.cache.Close()
}

func (j *manifestJob) build(ctx context.Context) (*manifest.Result, error) {
	if !j.quiet {
		fmt.Fprintf(j.out, "Generating file listing for %s...\n", j.root)
	}
	files, err := j.discover.Files()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", j.root, err)
	}

	result, err := j.builder.Build(ctx, files)
	if err != nil {
		return nil, err
	}

	if err := manifest.Write(j.output, result.Lines()); err != nil {
		return nil, err
	}
	if !j.quiet {
		fmt.Fprintf(j.out, "✓ Wrote %s\n", j.output)
	}
	return result, nil
}

// watch rebuilds the manifest after every debounced batch of changes until
// ctx is cancelled.
func (j *manifestJob) watch(ctx context.Context) error {
	match := func(path string) bool {
		// The manifest itself may live under the watched root.
		if path == j.output {
			return false
		}
		return j.discover.MatchPath(path)
	}

	w, err := watcher.New(j.root, match, watcher.DefaultDebounce, j.logger)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", j.root, err)
	}
	defer w.Stop()

	err = w.Start(ctx, func(files []string) {
		j.logger.Debug().Int("changed", len(files)).Msg("rebuilding manifest")
		for _, f := range files {
			j.cache.Invalidate(f)
		}
		result, err := j.build(ctx)
		if err != nil {
			if ctx.Err() == nil {
				j.logger.Error().Err(err).Msg("manifest rebuild failed")
			}
			return
		}
		j.logger.Debug().
			Int("reused", result.CacheHits).
			Int("cached_paths", j.cache.Len()).
			Int64("total_cache_hits", j.cache.Hits()).
			Msg("manifest rebuilt")
	})
	if err != nil {
		return err
	}

	if !j.quiet {
		fmt.Fprintf(j.out, "Watching %s for changes (Ctrl+C to stop)\n", j.root)
	}
	<-ctx.Done()
	return nil
}
