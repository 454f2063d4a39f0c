package manifest

// ProgressReporter provides callbacks for reporting build progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnBuildStart is called once with the number of candidate files.
	OnBuildStart(totalFiles int)

	// OnFileParsed is called after each file, from worker goroutines.
	OnFileParsed(path string, found bool)

	// OnBuildComplete is called when every file has been processed.
	OnBuildComplete(result *Result)
}

// NoOpProgressReporter is a progress reporter that does nothing.
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnBuildStart(totalFiles int)          {}
func (n *NoOpProgressReporter) OnFileParsed(path string, found bool) {}
func (n *NoOpProgressReporter) OnBuildComplete(result *Result)       {}
