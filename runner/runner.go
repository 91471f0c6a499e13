package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/snapshot"
	"github.com/hupe1980/teamwork/workflow"
)

// Options holds dependency overrides passed to New().
type Options struct {
	// Store receives every snapshot of every run.
	Store snapshot.Store
	// Logger for run lifecycle messages.
	Logger logging.Logger
}

// Result is the outcome of an asynchronous run.
type Result struct {
	RunID string
	State core.WorkflowState
	Err   error
}

// Runner executes a workflow, records its snapshots and tracks active runs
// so they can be cancelled or resumed. Public methods are safe for
// concurrent use.
type Runner struct {
	wf     *workflow.Workflow
	store  snapshot.Store
	logger logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.Mutex
}

// New constructs a Runner for wf. Snapshots are kept in memory unless a
// Store is supplied.
func New(wf *workflow.Workflow, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Store:  snapshot.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		wf:         wf,
		store:      opts.Store,
		logger:     opts.Logger,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Store returns the snapshot store of the runner.
func (r *Runner) Store() snapshot.Store { return r.store }

// Run executes a new run to completion and returns its id and final state.
func (r *Runner) Run(ctx context.Context) (string, core.WorkflowState, error) {
	runID := core.NewID()
	state, err := r.execute(ctx, runID, r.wf.RootState())
	return runID, state, err
}

// Start launches a new run in the background. The returned channel yields
// exactly one Result and is then closed.
func (r *Runner) Start(ctx context.Context) (string, <-chan Result) {
	runID := core.NewID()
	resultCh := make(chan Result, 1)

	ctx, cancel := context.WithCancel(ctx)
	r.track(runID, cancel)

	go func() {
		defer close(resultCh)
		defer cancel()

		state, err := r.execute(ctx, runID, r.wf.RootState())
		resultCh <- Result{RunID: runID, State: state, Err: err}
	}()

	return runID, resultCh
}

// Resume continues a recorded run from its latest snapshot. A run that
// already finished is returned as is.
func (r *Runner) Resume(ctx context.Context, runID string) (core.WorkflowState, error) {
	history, err := r.store.History(ctx, runID)
	if err != nil {
		return core.WorkflowState{}, err
	}
	latest := history[len(history)-1]

	if latest.State.Status == core.StatusFinished {
		return latest.State, nil
	}

	r.logger.Info("runner.resume", "run.id", runID, "step", latest.Step, "agent", latest.State.Agent)

	return r.execute(ctx, runID, latest.State, workflow.Continuing(history))
}

// Cancel cancels an active run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.Lock()
	cancel, exists := r.activeRuns[runID]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// Active returns the number of runs in progress.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeRuns)
}

func (r *Runner) track(runID string, cancel context.CancelFunc) {
	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()
}

func (r *Runner) execute(ctx context.Context, runID string, state core.WorkflowState, optFns ...func(o *workflow.RunOptions)) (core.WorkflowState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if _, exists := r.activeRuns[runID]; !exists {
		r.activeRuns[runID] = cancel
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	recorder := snapshot.NewRecorder(r.store)
	wf := r.wf.With(func(o *workflow.Options) {
		o.Observer = workflow.MultiObserver{o.Observer, recorder}
	})

	optFns = append(optFns, func(o *workflow.RunOptions) { o.RunID = runID })
	final, err := workflow.Resume(ctx, wf, state, optFns...)
	if err != nil {
		r.logger.Error("runner.run.failed", "run.id", runID, "error", err)
		return final, err
	}

	return final, nil
}
