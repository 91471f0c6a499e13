package snapshot

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/workflow"
)

// ErrNotFound is returned when a run has no recorded snapshots.
var ErrNotFound = errors.New("run not found")

// Run summarizes the latest known position of a recorded run.
type Run struct {
	ID        string
	Workflow  string
	Agent     string
	Status    core.Status
	Steps     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists workflow snapshots keyed by run id.
type Store interface {
	// Append records snap as the newest snapshot of its run.
	Append(ctx context.Context, snap workflow.Snapshot) error
	// Latest returns the newest snapshot of a run.
	Latest(ctx context.Context, runID string) (workflow.Snapshot, error)
	// History returns every snapshot of a run in recording order.
	History(ctx context.Context, runID string) ([]workflow.Snapshot, error)
	// Runs lists recorded runs, most recently updated first. limit <= 0
	// returns all of them.
	Runs(ctx context.Context, limit int) ([]Run, error)
}

// Recorder is a workflow.Observer persisting every snapshot to a Store.
type Recorder struct {
	store Store
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Observe implements workflow.Observer.
func (r *Recorder) Observe(ctx context.Context, snap workflow.Snapshot) error {
	return r.store.Append(ctx, snap)
}

func summarize(first, last workflow.Snapshot) Run {
	return Run{
		ID:        last.RunID,
		Workflow:  last.Workflow,
		Agent:     last.State.Agent,
		Status:    last.State.Status,
		Steps:     last.Step,
		CreatedAt: first.Time,
		UpdatedAt: last.Time,
	}
}
