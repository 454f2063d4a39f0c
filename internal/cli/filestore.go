package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/pdblister/internal/discovery"
	"github.com/mvp-joe/pdblister/internal/filestore"
)

var filestoreOut string

// filestoreCmd represents the filestore command
var filestoreCmd = &cobra.Command{
	Use:   "filestore <path>",
	Short: "Copy PE files into a symbol-server style binary store",
	Long: `Filestore recursively scans <path> and copies every PE file into
<store>/<file>/<TIMESTAMP><IMAGESIZE>/<file>, the layout symbol servers use
for executables. Debuggers can then fetch the original binaries for a crash
dump from the store.

Merge the store into a symbol server's directory to serve both PDBs and
binaries from one place. Files already in the store are not copied again.

Examples:
  pdblister filestore C:\Windows\System32
  pdblister filestore ./build --out /srv/symbols
`,
	Args: cobra.ExactArgs(1),
	RunE: runFilestore,
}

func init() {
	rootCmd.AddCommand(filestoreCmd)
	filestoreCmd.Flags().StringVar(&filestoreOut, "out", "", "store directory (default from config, \"filestore\")")
}

func runFilestore(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if filestoreOut != "" {
		cfg.Filestore.Path = filestoreOut
	}

	logger := newLogger(cfg, "filestore")
	out := cmd.OutOrStdout()

	d, err := discovery.New(args[0], cfg.Discovery.Include, cfg.Discovery.Ignore, logger)
	if err != nil {
		return fmt.Errorf("invalid discovery patterns: %w", err)
	}
	if !quiet {
		fmt.Fprintf(out, "Generating file listing for %s...\n", args[0])
	}
	files, err := d.Files()
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", args[0], err)
	}

	store := filestore.New(cfg.Filestore.Path, NewFilestoreProgress(out, quiet), logger)
	_, err = store.Populate(ctx, files)
	return err
}
