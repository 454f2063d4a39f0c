// Package journal records download runs and their per-line outcomes in a
// SQLite database kept next to the symbol cache.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/pdblister/internal/fetch"
	"github.com/mvp-joe/pdblister/internal/symsrv"
)

// ErrNoRuns is returned by LastRun on an empty journal.
var ErrNoRuns = errors.New("no runs recorded")

// Path returns the journal location for a symbol cache.
func Path(cacheRoot string) string {
	return filepath.Join(cacheRoot, ".pdblister", "journal.db")
}

// Run is one download run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"` // zero while running or if the run was interrupted
	Server     string    `json:"server"`
	CacheRoot  string    `json:"cache_root"`
	Total      int       `json:"total"`
	Skipped    int       `json:"skipped"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
}

// Finished reports whether the run completed.
func (r *Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Failure is one failed line of a run.
type Failure struct {
	Line       string `json:"line"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// Store is an open journal.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the journal database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection: ":memory:" databases and the pragma below are per
	// connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// StartRun records the start of a run over total manifest lines.
func (s *Store) StartRun(spec symsrv.Spec, total int) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
		Server:    spec.ServerURL,
		CacheRoot: spec.CacheRoot,
		Total:     total,
	}

	_, err := sq.Insert("runs").
		Columns("id", "started_at", "server", "cache_root", "total").
		Values(run.ID, run.StartedAt.Format(time.RFC3339Nano), run.Server, run.CacheRoot, run.Total).
		RunWith(s.db).
		Exec()
	if err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	return run, nil
}

// FinishRun stores the report's counts and every outcome for runID in a
// single transaction and marks the run finished.
func (s *Store) FinishRun(runID string, report *fetch.Report) error {
	return s.saveRun(runID, report, true)
}

// AbandonRun stores the partial report of an interrupted run. finished_at
// stays empty, so the run keeps reporting as unfinished.
func (s *Store) AbandonRun(runID string, report *fetch.Report) error {
	return s.saveRun(runID, report, false)
}

func (s *Store) saveRun(runID string, report *fetch.Report, finished bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	update := sq.Update("runs").
		Set("skipped", report.Skipped).
		Set("succeeded", report.Succeeded).
		Set("failed", report.Failed).
		Where(sq.Eq{"id": runID})
	if finished {
		update = update.Set("finished_at", s.now().UTC().Format(time.RFC3339Nano))
	}

	res, err := update.RunWith(tx).Exec()
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run %s", runID)
	}

	sqlStr, _, err := sq.Insert("outcomes").
		Columns("run_id", "line", "state", "status_code", "bytes", "error").
		Values("", "", "", 0, 0, "").
		Options("OR REPLACE").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL: %w", err)
	}

	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, o := range report.Outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}
		if _, err := stmt.Exec(runID, o.Line, o.State.String(), o.StatusCode, o.Bytes, errText); err != nil {
			return fmt.Errorf("failed to record outcome for %s: %w", o.Line, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

var runColumns = []string{
	"id", "started_at", "finished_at", "server", "cache_root",
	"total", "skipped", "succeeded", "failed",
}

// LastRun returns the most recently started run.
func (s *Store) LastRun() (*Run, error) {
	runs, err := s.Runs(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return &runs[0], nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	rows, err := sq.Select(runColumns...).
		From("runs").
		OrderBy("rowid DESC").
		Limit(uint64(limit)).
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Server, &run.CacheRoot,
			&run.Total, &run.Skipped, &run.Succeeded, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("bad started_at for run %s: %w", run.ID, err)
		}
		if finished.Valid {
			if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
				return nil, fmt.Errorf("bad finished_at for run %s: %w", run.ID, err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Failures returns the failed lines of a run, sorted by line.
func (s *Store) Failures(runID string) ([]Failure, error) {
	rows, err := sq.Select("line", "status_code", "error").
		From("outcomes").
		Where(sq.Eq{"run_id": runID, "state": fetch.StateFailed.String()}).
		OrderBy("line").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Line, &f.StatusCode, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}
