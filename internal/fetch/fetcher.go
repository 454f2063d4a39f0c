// Package fetch downloads the PDBs named by a manifest from a symbol server
// into its local cache, at most MaxConcurrency at a time.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/mvp-joe/pdblister/internal/manifest"
	"github.com/mvp-joe/pdblister/internal/symsrv"
)

// Config configures a Fetcher.
type Config struct {
	Concurrency int           // defaults to MaxConcurrency
	Timeout     time.Duration // per download, defaults to DefaultTimeout
	UserAgent   string
	Client      *http.Client
	Observer    Observer
	Logger      zerolog.Logger
}

// Fetcher runs manifest downloads.
type Fetcher struct {
	concurrency int
	timeout     time.Duration
	userAgent   string
	client      *http.Client
	observer    Observer
	logger      zerolog.Logger
}

// New creates a Fetcher.
func New(cfg Config) (*Fetcher, error) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = MaxConcurrency
	}
	if cfg.Concurrency < 0 || cfg.Concurrency > MaxConcurrency {
		return nil, fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidConcurrency, cfg.Concurrency, MaxConcurrency)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.Observer == nil {
		cfg.Observer = NoOpObserver{}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "pdblister"
	}

	return &Fetcher{
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		userAgent:   cfg.UserAgent,
		client:      cfg.Client,
		observer:    cfg.Observer,
		logger:      cfg.Logger,
	}, nil
}

// Run downloads every distinct manifest line that is not already present
// under spec.CacheRoot.
//
// A malformed line fails the whole run before anything is fetched. Per-line
// failures are collected in the report. If ctx is cancelled, lines not yet
// admitted are left out of the report and the context error is returned
// alongside the partial report.
func (f *Fetcher) Run(ctx context.Context, spec symsrv.Spec, lines []string) (*Report, error) {
	start := time.Now()

	parsed, err := Prepare(lines)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(spec.CacheRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}

	f.observer.OnRunStart(len(parsed))

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = &Report{}
		runErr error
	)
	sem := semaphore.NewWeighted(int64(f.concurrency))

	for _, line := range parsed {
		line := line
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = fmt.Errorf("download interrupted: %w", err)
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			f.observer.OnAdmit(line.Raw)
			outcome := f.fetchOne(ctx, spec, line)
			f.log(outcome)

			mu.Lock()
			report.add(outcome)
			mu.Unlock()

			f.observer.OnRelease(outcome)
		}()
	}
	wg.Wait()

	sortOutcomes(report.Outcomes)
	sortOutcomes(report.Failures)
	report.Duration = time.Since(start)
	return report, runErr
}

// Prepare sorts and dedups lines and parses every one of them. It is the
// validation Run performs before fetching anything; the result has one entry
// per distinct line.
func Prepare(lines []string) ([]manifest.Line, error) {
	lines = manifest.SortDedup(lines)
	parsed := make([]manifest.Line, len(lines))
	for i, raw := range lines {
		l, err := manifest.ParseLine(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedManifestLine, err)
		}
		parsed[i] = l
	}
	return parsed, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, spec symsrv.Spec, line manifest.Line) Outcome {
	outcome := Outcome{Line: line.Raw, State: StateFetching}
	fail := func(err error) Outcome {
		outcome.State = StateFailed
		outcome.Err = err
		return outcome
	}

	dest, err := spec.LocalPath(line.Name, line.Signature)
	if err != nil {
		return fail(err)
	}
	outcome.Path = dest

	if _, err := os.Stat(dest); err == nil {
		outcome.State = StateSkipped
		return outcome
	}

	url, err := spec.URL(line.Name, line.Signature)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	outcome.StatusCode = resp.StatusCode
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
	}

	n, err := writeFile(dest, resp.Body)
	if err != nil {
		return fail(err)
	}
	outcome.Bytes = n
	outcome.State = StateSucceeded
	return outcome
}

// writeFile streams body to dest through a ".partial" sibling so that an
// interrupted download is never mistaken for a present file.
func writeFile(dest string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := dest + ".partial"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, copyErr := io.Copy(file, body)
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to write %s: %w", dest, err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("failed to finalize %s: %w", dest, err)
	}
	return n, nil
}

func (f *Fetcher) log(o Outcome) {
	switch o.State {
	case StateFailed:
		f.logger.Warn().Str("line", o.Line).Int("status", o.StatusCode).Err(o.Err).Msg("download failed")
	case StateSucceeded:
		f.logger.Debug().Str("path", o.Path).Int64("bytes", o.Bytes).Msg("downloaded")
	case StateSkipped:
		f.logger.Trace().Str("path", o.Path).Msg("already present")
	}
}

func sortOutcomes(outcomes []Outcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Line < outcomes[j].Line
	})
}
