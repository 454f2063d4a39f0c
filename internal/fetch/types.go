package fetch

import (
	"errors"
	"time"
)

// MaxConcurrency is the upper bound on simultaneously in-flight downloads.
// It keeps file descriptor and socket usage bounded for manifests with tens
// of thousands of entries.
const MaxConcurrency = 64

// DefaultTimeout bounds a single download, from request to the last byte.
const DefaultTimeout = 5 * time.Minute

var (
	// ErrMalformedManifestLine aborts a run before any request is made.
	ErrMalformedManifestLine = errors.New("malformed manifest line")

	// ErrUnexpectedStatus is recorded for non-200 responses.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrInvalidConcurrency indicates a concurrency outside 1..MaxConcurrency.
	ErrInvalidConcurrency = errors.New("invalid download concurrency")
)

// State is the lifecycle state of one manifest line.
type State int

const (
	StatePending State = iota
	StateSkipped
	StateFetching
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSkipped:
		return "skipped"
	case StateFetching:
		return "fetching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one manifest line.
type Outcome struct {
	Line       string
	State      State
	Path       string // destination under the cache root
	StatusCode int    // zero when no response was received
	Bytes      int64
	Err        error
}

// Report aggregates every outcome of a run.
type Report struct {
	Skipped   int
	Succeeded int
	Failed    int

	// Outcomes and Failures are sorted by manifest line.
	Outcomes []Outcome
	Failures []Outcome

	Duration time.Duration
}

// Total returns the number of lines that reached a terminal state.
func (r *Report) Total() int {
	return r.Skipped + r.Succeeded + r.Failed
}

func (r *Report) add(o Outcome) {
	switch o.State {
	case StateSkipped:
		r.Skipped++
	case StateSucceeded:
		r.Succeeded++
	case StateFailed:
		r.Failed++
		r.Failures = append(r.Failures, o)
	}
	r.Outcomes = append(r.Outcomes, o)
}

// Observer receives scheduling events. Calls come from task goroutines;
// OnRelease for a task always happens before its admission slot is reused.
type Observer interface {
	OnRunStart(total int)
	OnAdmit(line string)
	OnRelease(outcome Outcome)
}

// NoOpObserver ignores every event.
type NoOpObserver struct{}

func (NoOpObserver) OnRunStart(total int)      {}
func (NoOpObserver) OnAdmit(line string)       {}
func (NoOpObserver) OnRelease(outcome Outcome) {}
