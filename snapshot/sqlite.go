package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/workflow"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// an in-memory database lives and dies with its connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		workflow TEXT NOT NULL,
		agent TEXT NOT NULL,
		status TEXT NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		step INTEGER NOT NULL,
		event TEXT NOT NULL,
		agent TEXT NOT NULL,
		depth INTEGER NOT NULL,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id, seq);
	CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, snap workflow.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workflow, agent, status, steps, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET agent = excluded.agent, status = excluded.status,
		 steps = excluded.steps, updated_at = excluded.updated_at`,
		snap.RunID, snap.Workflow, snap.State.Agent, string(snap.State.Status), snap.Step, snap.Time, snap.Time,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, step, event, agent, depth, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Step, string(snap.Event), snap.Agent, snap.Depth, string(state), snap.Time,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

const snapshotColumns = `s.run_id, r.workflow, s.step, s.event, s.agent, s.depth, s.state, s.created_at`

// Latest implements Store.
func (s *SQLiteStore) Latest(ctx context.Context, runID string) (workflow.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+`
		 FROM snapshots s JOIN runs r ON r.id = s.run_id
		 WHERE s.run_id = ? ORDER BY s.seq DESC LIMIT 1`, runID,
	)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return snap, err
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, runID string) ([]workflow.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotColumns+`
		 FROM snapshots s JOIN runs r ON r.id = s.run_id
		 WHERE s.run_id = ? ORDER BY s.seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []workflow.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}

	return snaps, nil
}

// Runs implements Store.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow, agent, status, steps, created_at, updated_at
		 FROM runs ORDER BY updated_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run    Run
			status string
		)
		if err := rows.Scan(&run.ID, &run.Workflow, &run.Agent, &status, &run.Steps, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		run.Status = core.Status(status)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (workflow.Snapshot, error) {
	var (
		snap  workflow.Snapshot
		event string
		state string
		at    time.Time
	)

	if err := row.Scan(&snap.RunID, &snap.Workflow, &snap.Step, &event, &snap.Agent, &snap.Depth, &state, &at); err != nil {
		return workflow.Snapshot{}, err
	}

	if err := json.Unmarshal([]byte(state), &snap.State); err != nil {
		return workflow.Snapshot{}, fmt.Errorf("decode state of run %s: %w", snap.RunID, err)
	}
	snap.Event = workflow.Event(event)
	snap.Time = at

	return snap, nil
}
