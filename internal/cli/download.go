package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvp-joe/pdblister/internal/config"
	"github.com/mvp-joe/pdblister/internal/fetch"
	"github.com/mvp-joe/pdblister/internal/journal"
	"github.com/mvp-joe/pdblister/internal/manifest"
	"github.com/mvp-joe/pdblister/internal/symsrv"
)

var (
	downloadManifest    string
	downloadTimeout     time.Duration
	downloadConcurrency int
	downloadNoJournal   bool
)

// maxListedFailures caps the failures printed after a run; the journal keeps
// all of them.
const maxListedFailures = 20

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download [SRV*<cache>*<url>]",
	Short: "Download the PDBs listed in a manifest from a symbol server",
	Long: `Download fetches every PDB named in the manifest from a symbol server into
a local cache using the server layout <cache>/<pdb>/<GUID><age>/<pdb>.

PDBs already present in the cache are skipped without contacting the server,
so an interrupted download can simply be run again. Only a single
SRV*<cache>*<url> pair is supported; ';' separated chains are rejected.

Every run is recorded in <cache>/.pdblister/journal.db; see 'pdblister status'.

Examples:
  pdblister download SRV*C:\symbols*https://msdl.microsoft.com/download/symbols

  # Use download.server from .pdblister/config.yml and another manifest
  pdblister download -m other.manifest
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadManifest, "manifest", "m", "", "manifest to read (default from config, \"manifest\")")
	downloadCmd.Flags().DurationVar(&downloadTimeout, "timeout", 0, "timeout per download (default from config, 5m)")
	downloadCmd.Flags().IntVar(&downloadConcurrency, "concurrency", 0, fmt.Sprintf("simultaneous downloads, at most %d", fetch.MaxConcurrency))
	downloadCmd.Flags().BoolVar(&downloadNoJournal, "no-journal", false, "do not record the run in the cache's journal")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Download.Server = args[0]
	}
	if downloadManifest != "" {
		cfg.Manifest.Path = downloadManifest
	}
	if downloadTimeout > 0 {
		cfg.Download.Timeout = downloadTimeout
	}
	if downloadConcurrency > 0 {
		cfg.Download.Concurrency = downloadConcurrency
	}

	report, err := download(ctx, cfg, downloadOptions{
		out:       cmd.OutOrStdout(),
		quiet:     quiet,
		noJournal: downloadNoJournal,
		logger:    newLogger(cfg, "download"),
	})
	if err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", report.Failed, report.Total())
	}
	return nil
}

type downloadOptions struct {
	out       io.Writer
	quiet     bool
	noJournal bool
	client    *http.Client
	logger    zerolog.Logger
}

func download(ctx context.Context, cfg *config.Config, opts downloadOptions) (*fetch.Report, error) {
	if cfg.Download.Server == "" {
		return nil, errors.New("no symbol server given: pass SRV*<cache>*<url> or set download.server")
	}
	spec, err := symsrv.Parse(cfg.Download.Server)
	if err != nil {
		return nil, err
	}

	lines, err := manifest.Read(cfg.Manifest.Path)
	if err != nil {
		return nil, err
	}
	// Reject a bad manifest before a run is journaled.
	parsed, err := fetch.Prepare(lines)
	if err != nil {
		return nil, err
	}

	progress := NewDownloadProgress(opts.out, opts.quiet)
	fetcher, err := fetch.New(fetch.Config{
		Concurrency: cfg.Download.Concurrency,
		Timeout:     cfg.Download.Timeout,
		UserAgent:   userAgent(),
		Client:      opts.client,
		Observer:    progress,
		Logger:      opts.logger,
	})
	if err != nil {
		return nil, err
	}

	// The journal is a convenience; failing to open it never blocks a download.
	var (
		store *journal.Store
		run   *journal.Run
	)
	if !opts.noJournal {
		store, run = startJournal(spec, len(parsed), opts.logger)
		if store != nil {
			defer store.Close()
		}
	}

	report, runErr := fetcher.Run(ctx, spec, lines)
	progress.Finish()
	if report == nil {
		return nil, runErr
	}

	if run != nil {
		record := store.FinishRun
		if runErr != nil {
			record = store.AbandonRun
		}
		if err := record(run.ID, report); err != nil {
			opts.logger.Warn().Err(err).Msg("failed to record run in journal")
		}
	}

	if !opts.quiet {
		printReport(opts.out, report)
	}
	return report, runErr
}

func startJournal(spec symsrv.Spec, total int, logger zerolog.Logger) (*journal.Store, *journal.Run) {
	store, err := journal.Open(journal.Path(spec.CacheRoot))
	if err != nil {
		logger.Warn().Err(err).Msg("journal unavailable")
		return nil, nil
	}
	run, err := store.StartRun(spec, total)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to record run start")
		store.Close()
		return nil, nil
	}
	return store, run
}

func printReport(out io.Writer, report *fetch.Report) {
	fmt.Fprintf(out, "✓ Download complete in %.1fs\n", report.Duration.Seconds())
	fmt.Fprintf(out, "  Downloaded:      %s\n", formatNumber(report.Succeeded))
	fmt.Fprintf(out, "  Already present: %s\n", formatNumber(report.Skipped))
	fmt.Fprintf(out, "  Failed:          %s\n", formatNumber(report.Failed))

	for i, f := range report.Failures {
		if i == maxListedFailures {
			fmt.Fprintf(out, "    ... and %d more (see 'pdblister status')\n", len(report.Failures)-i)
			break
		}
		fmt.Fprintf(out, "    %s: %v\n", f.Line, f.Err)
	}
}
