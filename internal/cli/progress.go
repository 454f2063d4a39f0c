package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/pdblister/internal/fetch"
	"github.com/mvp-joe/pdblister/internal/filestore"
	"github.com/mvp-joe/pdblister/internal/manifest"
)

func newBar(out io.Writer, total int, description, its string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(its),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)
}

// ManifestProgress reports manifest builds with a progress bar.
type ManifestProgress struct {
	out   io.Writer
	quiet bool
	bar   *progressbar.ProgressBar
	start time.Time
}

// NewManifestProgress creates a manifest progress reporter.
func NewManifestProgress(out io.Writer, quiet bool) *ManifestProgress {
	return &ManifestProgress{out: out, quiet: quiet}
}

func (p *ManifestProgress) OnBuildStart(totalFiles int) {
	p.start = time.Now()
	if p.quiet {
		return
	}
	p.bar = newBar(p.out, totalFiles, "Parsing files", "files/s")
}

func (p *ManifestProgress) OnFileParsed(path string, found bool) {
	if p.bar != nil {
		p.bar.Add(1)
	}
}

func (p *ManifestProgress) OnBuildComplete(result *manifest.Result) {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "✓ Found %s PDB references in %s files (%.1fs)\n",
		formatNumber(len(result.Identities)), formatNumber(result.Files), time.Since(p.start).Seconds())
	if result.NoIdentity > 0 || result.Errors > 0 {
		fmt.Fprintf(p.out, "  Without PDB reference: %s\n", formatNumber(result.NoIdentity))
		fmt.Fprintf(p.out, "  Unreadable:            %s\n", formatNumber(result.Errors))
	}
}

// DownloadProgress reports fetcher activity with a progress bar.
type DownloadProgress struct {
	out   io.Writer
	quiet bool
	bar   *progressbar.ProgressBar
}

// NewDownloadProgress creates a fetch.Observer drawing a progress bar.
func NewDownloadProgress(out io.Writer, quiet bool) *DownloadProgress {
	return &DownloadProgress{out: out, quiet: quiet}
}

func (p *DownloadProgress) OnRunStart(total int) {
	if p.quiet {
		return
	}
	p.bar = newBar(p.out, total, "Downloading", "pdb/s")
}

func (p *DownloadProgress) OnAdmit(line string) {}

func (p *DownloadProgress) OnRelease(outcome fetch.Outcome) {
	if p.bar != nil {
		p.bar.Add(1)
	}
}

// Finish completes the bar.
func (p *DownloadProgress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
}

// FilestoreProgress reports filestore population.
type FilestoreProgress struct {
	out   io.Writer
	quiet bool
	bar   *progressbar.ProgressBar
}

// NewFilestoreProgress creates a filestore progress reporter.
func NewFilestoreProgress(out io.Writer, quiet bool) *FilestoreProgress {
	return &FilestoreProgress{out: out, quiet: quiet}
}

func (p *FilestoreProgress) OnStart(totalFiles int) {
	if p.quiet {
		return
	}
	p.bar = newBar(p.out, totalFiles, "Copying files", "files/s")
}

func (p *FilestoreProgress) OnFile(path string, copied bool) {
	if p.bar != nil {
		p.bar.Add(1)
	}
}

func (p *FilestoreProgress) OnComplete(result *filestore.Result) {
	if p.bar != nil {
		p.bar.Finish()
		p.bar = nil
	}
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "✓ Copied %s files (%s already present, %s not PE, %s failed)\n",
		formatNumber(result.Copied), formatNumber(result.Skipped),
		formatNumber(result.NotPE), formatNumber(result.Failed))
}

var (
	_ manifest.ProgressReporter  = (*ManifestProgress)(nil)
	_ fetch.Observer             = (*DownloadProgress)(nil)
	_ filestore.ProgressReporter = (*FilestoreProgress)(nil)
)
