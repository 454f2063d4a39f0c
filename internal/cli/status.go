package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/pdblister/internal/config"
	"github.com/mvp-joe/pdblister/internal/journal"
	"github.com/mvp-joe/pdblister/internal/symsrv"
)

var (
	statusCache string
	statusJSON  bool
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last download run recorded in a symbol cache",
	Long: `Status reads the journal of a symbol cache and shows the most recent
download run with its counts and failed lines.

The cache defaults to the one of download.server, or "symbols".

Examples:
  pdblister status
  pdblister status --cache C:\symbols --json
`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusCache, "cache", "", "symbol cache directory")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cache := statusCache
	if cache == "" {
		cache = config.DefaultSymbolCache
		if spec, err := symsrv.Parse(cfg.Download.Server); err == nil {
			cache = spec.CacheRoot
		}
	}
	return showStatus(cmd.OutOrStdout(), cache, statusJSON)
}

// runStatusView is the JSON shape of status.
type runStatusView struct {
	Run      *journal.Run      `json:"run"`
	Failures []journal.Failure `json:"failures"`
}

func showStatus(out io.Writer, cache string, asJSON bool) error {
	path := journal.Path(cache)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(out, "No downloads recorded in %s\n", cache)
		return nil
	}

	store, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.LastRun()
	if errors.Is(err, journal.ErrNoRuns) {
		fmt.Fprintf(out, "No downloads recorded in %s\n", cache)
		return nil
	}
	if err != nil {
		return err
	}

	failures, err := store.Failures(run.ID)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(runStatusView{Run: run, Failures: failures}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	formatRun(out, run)
	if len(failures) > 0 {
		fmt.Fprintf(out, "Failures (%d):\n", len(failures))
		for _, f := range failures {
			if f.StatusCode != 0 {
				fmt.Fprintf(out, "  %s (HTTP %d)\n", f.Line, f.StatusCode)
			} else {
				fmt.Fprintf(out, "  %s: %s\n", f.Line, f.Error)
			}
		}
	}
	return nil
}

func formatRun(out io.Writer, run *journal.Run) {
	fmt.Fprintln(out, "Last download:")
	fmt.Fprintf(out, "  Run:      %s\n", run.ID)
	fmt.Fprintf(out, "  Server:   %s\n", run.Server)
	fmt.Fprintf(out, "  Cache:    %s\n", run.CacheRoot)
	fmt.Fprintf(out, "  Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.Finished() {
		fmt.Fprintf(out, "  Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	} else {
		fmt.Fprintln(out, "  Status:   did not finish")
	}
	fmt.Fprintf(out, "  Lines:    %s\n", formatNumber(run.Total))
	fmt.Fprintf(out, "  Downloaded: %s  Already present: %s  Failed: %s\n",
		formatNumber(run.Succeeded), formatNumber(run.Skipped), formatNumber(run.Failed))
}
