// Package filestore copies PE images into a symbol-server style binary store,
// keyed by link timestamp and image size the way symbol servers index
// executables.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/mvp-joe/pdblister/internal/pe"
)

// Result counts the files seen by Populate.
type Result struct {
	Files   int
	Copied  int
	Skipped int // already present in the store
	NotPE   int
	Failed  int
}

// ProgressReporter receives one callback per examined file.
type ProgressReporter interface {
	OnStart(totalFiles int)
	OnFile(path string, copied bool)
	OnComplete(result *Result)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (NoOpProgressReporter) OnStart(totalFiles int)          {}
func (NoOpProgressReporter) OnFile(path string, copied bool) {}
func (NoOpProgressReporter) OnComplete(result *Result)       {}

// Store is a binary store rooted at a directory.
type Store struct {
	root     string
	progress ProgressReporter
	logger   zerolog.Logger
}

// New creates a Store rooted at root. progress may be nil.
func New(root string, progress ProgressReporter, logger zerolog.Logger) *Store {
	if progress == nil {
		progress = NoOpProgressReporter{}
	}
	return &Store{root: root, progress: progress, logger: logger}
}

// Key returns "<base>/<TIMESTAMP><SIZE>/<base>" for the image at path, with
// the timestamp as 8 lowercase hex digits and the image size unpadded.
func Key(path string) (string, error) {
	h, err := pe.ReadHeadersFile(path)
	if err != nil {
		return "", err
	}
	base := filepath.Base(path)
	index := fmt.Sprintf("%08x%x", h.File.TimeDateStamp, h.Optional.SizeOfImage)
	return filepath.Join(base, index, base), nil
}

// Populate copies every PE image in paths that is not yet in the store.
// Files that are not PE images are skipped silently.
func (s *Store) Populate(ctx context.Context, paths []string) (*Result, error) {
	result := &Result{Files: len(paths)}
	s.progress.OnStart(len(paths))

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("filestore interrupted: %w", err)
		}

		copied := false
		key, err := Key(path)
		switch {
		case pe.IsFormatError(err):
			result.NotPE++
		case err != nil:
			result.Failed++
			s.logger.Debug().Str("path", path).Err(err).Msg("failed to read headers")
		default:
			dest := filepath.Join(s.root, key)
			if _, err := os.Stat(dest); err == nil {
				result.Skipped++
				break
			}
			if err := copyFile(path, dest); err != nil {
				result.Failed++
				s.logger.Warn().Str("path", path).Err(err).Msg("failed to copy file")
				break
			}
			result.Copied++
			copied = true
		}
		s.progress.OnFile(path, copied)
	}

	s.progress.OnComplete(result)
	return result, nil
}

func copyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	if err := errors.Join(copyErr, out.Close()); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
