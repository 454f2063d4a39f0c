package watcher

import "context"

// FileWatcher monitors a directory tree and reports debounced batches of
// changed files.
type FileWatcher interface {
	// Start begins watching, calling callback with each batch of changed paths.
	Start(ctx context.Context, callback func(files []string)) error

	// Stop stops the watcher and waits for the event loop to exit.
	Stop() error
}
