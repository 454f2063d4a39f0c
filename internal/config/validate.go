package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog"

	"github.com/mvp-joe/pdblister/internal/fetch"
	"github.com/mvp-joe/pdblister/internal/symsrv"
)

var (
	// ErrEmptyPath indicates a missing output path
	ErrEmptyPath = errors.New("empty path")

	// ErrInvalidWorkers indicates a negative worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrInvalidServer indicates a download.server that is not a SRV spec
	ErrInvalidServer = errors.New("invalid symbol server")

	// ErrInvalidConcurrency indicates a download concurrency outside 1..64
	ErrInvalidConcurrency = errors.New("invalid download concurrency")

	// ErrInvalidTimeout indicates a non-positive download timeout
	ErrInvalidTimeout = errors.New("invalid download timeout")

	// ErrInvalidLogLevel indicates an unknown log level
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateManifest(&cfg.Manifest); err != nil {
		errs = append(errs, err)
	}
	if err := validateDiscovery(&cfg.Discovery); err != nil {
		errs = append(errs, err)
	}
	if err := validateDownload(&cfg.Download); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.Filestore.Path) == "" {
		errs = append(errs, fmt.Errorf("%w: filestore.path is required", ErrEmptyPath))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, cfg.Log.Level))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateManifest(cfg *ManifestConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Path) == "" {
		errs = append(errs, fmt.Errorf("%w: manifest.path is required", ErrEmptyPath))
	}
	if cfg.Workers < 0 {
		errs = append(errs, fmt.Errorf("%w: workers cannot be negative, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateDiscovery(cfg *DiscoveryConfig) error {
	var errs []error

	for _, pattern := range append(append([]string{}, cfg.Include...), cfg.Ignore...) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err))
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateDownload(cfg *DownloadConfig) error {
	var errs []error

	// The server may also come from the command line, so empty is allowed.
	if cfg.Server != "" {
		if _, err := symsrv.Parse(cfg.Server); err != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidServer, err))
		}
	}
	if cfg.Concurrency < 1 || cfg.Concurrency > fetch.MaxConcurrency {
		errs = append(errs, fmt.Errorf("%w: must be between 1 and %d, got %d", ErrInvalidConcurrency, fetch.MaxConcurrency, cfg.Concurrency))
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %s", ErrInvalidTimeout, cfg.Timeout))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

// joinErrors combines multiple errors into a single error with clear formatting.
// A single error is returned as is so errors.Is keeps working.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	var msgs []string
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}

	return fmt.Errorf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}
