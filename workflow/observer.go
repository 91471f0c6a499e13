package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
)

// Event names the point of a run at which a Snapshot was taken.
type Event string

const (
	// EventStart is emitted once with the initial root state.
	EventStart Event = "start"
	// EventResume replaces EventStart when a recorded run is continued.
	EventResume Event = "resume"
	// EventAgent follows an agent turn.
	EventAgent Event = "agent"
	// EventTools follows the resolution of a tool call request.
	EventTools Event = "tools"
	// EventMerge follows folding a finished child into its parent.
	EventMerge Event = "merge"
	// EventFallback follows handing an exhausted run to the fallback.
	EventFallback Event = "fallback"
	// EventFinish is emitted once with the finished root state.
	EventFinish Event = "finish"
)

// Snapshot is the root state of a run after one driver step.
type Snapshot struct {
	RunID    string             `json:"run_id"`
	Workflow string             `json:"workflow"`
	Step     int                `json:"step"`
	Event    Event              `json:"event"`
	Agent    string             `json:"agent"`
	Depth    int                `json:"depth"`
	State    core.WorkflowState `json:"state"`
	Time     time.Time          `json:"time"`
}

// Observer receives a snapshot after every driver step. Errors are logged
// and never abort the run.
type Observer interface {
	Observe(ctx context.Context, snap Snapshot) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, snap Snapshot) error

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// MultiObserver fans a snapshot out to several observers in order. Every
// observer is called; their errors are joined.
type MultiObserver []Observer

// Observe implements Observer.
func (m MultiObserver) Observe(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, o := range m {
		if o == nil {
			continue
		}
		if err := o.Observe(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogObserver writes each snapshot as a structured log record.
type LogObserver struct {
	Logger logging.Logger
}

// Observe implements Observer.
func (o LogObserver) Observe(_ context.Context, snap Snapshot) error {
	if o.Logger == nil {
		return nil
	}
	o.Logger.Info("workflow.snapshot",
		"run.id", snap.RunID,
		"workflow", snap.Workflow,
		"step", snap.Step,
		"event", string(snap.Event),
		"agent", snap.Agent,
		"depth", snap.Depth,
		"status", string(snap.State.Status),
	)
	return nil
}
