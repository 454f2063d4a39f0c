package journal

import (
	"database/sql"
	"fmt"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    finished_at TEXT,
    server      TEXT NOT NULL,
    cache_root  TEXT NOT NULL,
    total       INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
)`

const createOutcomesTable = `
CREATE TABLE IF NOT EXISTS outcomes (
    run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    line        TEXT NOT NULL,
    state       TEXT NOT NULL,
    status_code INTEGER NOT NULL DEFAULT 0,
    bytes       INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, line)
)`

const createOutcomesStateIndex = `CREATE INDEX IF NOT EXISTS idx_outcomes_state ON outcomes(run_id, state)`

// CreateSchema creates the journal tables. It is idempotent.
func CreateSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	statements := []struct {
		name string
		ddl  string
	}{
		{"runs", createRunsTable},
		{"outcomes", createOutcomesTable},
		{"outcomes state index", createOutcomesStateIndex},
	}

	for _, s := range statements {
		if _, err := tx.Exec(s.ddl); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}
