package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/pdblister/internal/config"
	"github.com/mvp-joe/pdblister/internal/symsrv"
)

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the manifest, the symbol cache and the filestore",
	Long: `Clean removes everything pdblister produces:

  - the manifest (manifest.path, default "manifest")
  - the symbol cache of download.server, or "symbols" when none is configured
  - the filestore (filestore.path, default "filestore")

The configuration file (.pdblister/config.yml) is preserved. Missing paths
are ignored.

Examples:
  pdblister clean
  pdblister clean --quiet
`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return clean(cmd.OutOrStdout(), cleanTargets(cfg), quiet)
}

// cleanTarget is one path removed by clean.
type cleanTarget struct {
	label string
	path  string
}

func cleanTargets(cfg *config.Config) []cleanTarget {
	cache := config.DefaultSymbolCache
	if spec, err := symsrv.Parse(cfg.Download.Server); err == nil {
		cache = spec.CacheRoot
	}
	return []cleanTarget{
		{label: "manifest", path: cfg.Manifest.Path},
		{label: "symbol cache", path: cache},
		{label: "filestore", path: cfg.Filestore.Path},
	}
}

func clean(out io.Writer, targets []cleanTarget, quiet bool) error {
	removed := 0
	for _, t := range targets {
		if _, err := os.Lstat(t.path); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(t.path); err != nil {
			return fmt.Errorf("failed to remove %s %s: %w", t.label, t.path, err)
		}
		removed++
		if !quiet {
			fmt.Fprintf(out, "✓ Removed %s (%s)\n", t.label, t.path)
		}
	}

	if removed == 0 && !quiet {
		fmt.Fprintln(out, "Nothing to clean")
	}
	return nil
}
