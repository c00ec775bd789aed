package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunRunning   = "running"
	RunDone      = "done"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// Run is one entry of the ingestion ledger.
type Run struct {
	RunID      string     `json:"runId"`
	Day        string     `json:"day"`
	Mode       string     `json:"mode"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	LastCursor int64      `json:"lastCursor"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
}

// StartRun records the start of a day load and returns its ID
func (db *DB) StartRun(ctx context.Context, day, mode string, startedAt time.Time) (string, error) {
	runID := uuid.New().String()

	db.LockWrite()
	defer db.UnlockWrite()

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO ingest_runs (run_id, day, mode, started_at_utc, status) VALUES (?, ?, ?, ?, ?)",
		runID, day, mode, startedAt.UTC().Format(time.RFC3339), RunRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	return runID, nil
}

// CommitCursor stores the cursor reached after a successful cycle.
func (db *DB) CommitCursor(ctx context.Context, runID string, cursor int64) error {
	db.LockWrite()
	defer db.UnlockWrite()

	_, err := db.conn.ExecContext(ctx, "UPDATE ingest_runs SET last_cursor = ? WHERE run_id = ?", cursor, runID)
	if err != nil {
		return fmt.Errorf("failed to update cursor of run %s: %w", runID, err)
	}
	return nil
}

// FinishRun marks a run as finished with the given status. runErr may be nil.
func (db *DB) FinishRun(ctx context.Context, runID, status string, finishedAt time.Time, runErr error) error {
	var errText *string
	if runErr != nil {
		s := runErr.Error()
		errText = &s
	}

	db.LockWrite()
	defer db.UnlockWrite()

	_, err := db.conn.ExecContext(ctx,
		"UPDATE ingest_runs SET status = ?, finished_at_utc = ?, error = ? WHERE run_id = ?",
		status, finishedAt.UTC().Format(time.RFC3339), errText, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

// Runs returns the ledger entries of a day, oldest first.
func (db *DB) Runs(ctx context.Context, day string) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, day, mode, started_at_utc, finished_at_utc, last_cursor, status, error
		FROM ingest_runs
		WHERE day = ?
		ORDER BY started_at_utc, rowid
	`, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started string
		var finished, errText sql.NullString
		if err := rows.Scan(&r.RunID, &r.Day, &r.Mode, &started, &finished, &r.LastCursor, &r.Status, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			r.StartedAt = t
		}
		if finished.Valid {
			if t, err := time.Parse(time.RFC3339, finished.String); err == nil {
				r.FinishedAt = &t
			}
		}
		if errText.Valid {
			s := errText.String
			r.Error = &s
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}
