package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
)

// RunOptions configures a single run.
type RunOptions struct {
	// RunID tags logs and snapshots; generated when empty.
	RunID string
	// StartStep is the step number of the state a resumed run continues
	// from. Zero starts a new run.
	StartStep int
	// Turns is the number of agent turns already spent against the current
	// budget.
	Turns int
	// FallbackEngaged marks a run whose fallback already took over.
	FallbackEngaged bool
}

// Continuing returns run options that carry on the run recorded in history
// (oldest first): its id, step numbering and spent budget.
func Continuing(history []Snapshot) func(o *RunOptions) {
	return func(o *RunOptions) {
		if len(history) == 0 {
			return
		}
		last := history[len(history)-1]
		o.RunID = last.RunID
		o.StartStep = last.Step
		o.Turns = 0
		o.FallbackEngaged = false
		for _, s := range history {
			switch s.Event {
			case EventFallback:
				o.FallbackEngaged = true
				o.Turns = 0
			case EventAgent:
				o.Turns++
			}
		}
	}
}

type stepLogger interface {
	LogStep(step int, agent, event string, depth int)
}

type runLogger interface {
	LogRun(steps int, dur time.Duration, success bool, err error)
}

// Teamwork runs the workflow from its root state until the root finishes.
// It returns the finished root or the first error.
func Teamwork(ctx context.Context, wf *Workflow, optFns ...func(o *RunOptions)) (core.WorkflowState, error) {
	return wf.execute(ctx, wf.RootState(), optFns)
}

// Resume continues a run from a previously recorded root state.
func Resume(ctx context.Context, wf *Workflow, state core.WorkflowState, optFns ...func(o *RunOptions)) (core.WorkflowState, error) {
	return wf.execute(ctx, state, optFns)
}

// Iterate performs exactly one transition on the tree rooted at state: a
// merge, a tool resolution or an agent turn at the innermost unresolved
// level. A finished root is returned unchanged. No step guard applies.
func (w *Workflow) Iterate(ctx context.Context, state core.WorkflowState) (core.WorkflowState, error) {
	next, _, err := w.iterate(ctx, state, nil, 1)
	return next, err
}

type transition struct {
	event Event
	agent string
	depth int
}

func (w *Workflow) iterate(ctx context.Context, state core.WorkflowState, history []core.Message, depth int) (core.WorkflowState, transition, error) {
	if state.Child != nil {
		if state.Child.Status == core.StatusFinished {
			merged, err := core.Merge(state)
			return merged, transition{event: EventMerge, agent: state.Agent, depth: depth}, err
		}

		scope := append(core.CloneMessages(history), state.Messages...)
		child, t, err := w.iterate(ctx, *state.Child, scope, depth+1)
		if err != nil {
			return state, t, err
		}
		next := state.Clone()
		next.Child = &child
		return next, t, nil
	}

	t := transition{agent: state.Agent, depth: depth}

	switch state.Status {
	case core.StatusFinished:
		return state, t, nil
	case core.StatusPaused:
		t.event = EventTools
		a, err := w.team.Get(state.Agent)
		if err != nil {
			return state, t, err
		}
		results, err := w.opts.Executor.Execute(ctx, a.Tools(), a.Provider(), state.Messages)
		if err != nil {
			return state, t, err
		}
		return core.ResumeWithResults(state, results), t, nil
	case core.StatusRunning:
		t.event = EventAgent
		a, err := w.team.Get(state.Agent)
		if err != nil {
			return state, t, err
		}
		next, err := a.Run(ctx, state.Clone(), core.CloneMessages(history), w.team)
		if err != nil {
			return state, t, err
		}
		if err := w.check(next); err != nil {
			return state, t, fmt.Errorf("agent %s: %w", state.Agent, err)
		}
		return next, t, nil
	default:
		return state, t, fmt.Errorf("%w: unknown status %q", core.ErrProtocol, state.Status)
	}
}

// check validates the state tree and that every agent it names is a member.
func (w *Workflow) check(s core.WorkflowState) error {
	if err := core.Validate(s); err != nil {
		return err
	}
	for cur := &s; cur != nil; cur = cur.Child {
		if _, err := w.team.Get(cur.Agent); err != nil {
			return err
		}
	}
	return nil
}

// nextTurn reports the agent whose turn the next transition is, if any.
func nextTurn(root core.WorkflowState) (string, bool) {
	cur := root
	for cur.Child != nil {
		if cur.Child.Status == core.StatusFinished {
			return "", false
		}
		cur = *cur.Child
	}
	return cur.Agent, cur.Status == core.StatusRunning
}

type run struct {
	id       string
	logger   logging.Logger
	limiter  *core.StepLimiter
	steps    int
	fallback bool
	resumed  bool
}

func (w *Workflow) newLimiter() *core.StepLimiter {
	if w.opts.StepPolicy != nil {
		return core.NewStepLimiter(0)
	}
	return core.NewStepLimiter(w.opts.MaxSteps)
}

// exhausted counts one agent turn and reports whether the budget is spent.
func (w *Workflow) exhausted(r *run, root core.WorkflowState) bool {
	if err := r.limiter.Increment(); err != nil {
		return true
	}
	return w.opts.StepPolicy != nil && w.opts.StepPolicy(r.limiter.Count(), root)
}

func (w *Workflow) execute(ctx context.Context, root core.WorkflowState, optFns []func(o *RunOptions)) (core.WorkflowState, error) {
	opts := RunOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.RunID == "" {
		opts.RunID = core.NewID()
	}

	r := &run{
		id:       opts.RunID,
		logger:   w.opts.Logger,
		limiter:  w.newLimiter(),
		steps:    opts.StartStep,
		fallback: opts.FallbackEngaged,
		resumed:  opts.StartStep > 0,
	}
	r.limiter.Restore(opts.Turns)
	if tl, ok := w.opts.Logger.(*logging.TeamworkLogger); ok {
		r.logger = tl.WithRun(w.opts.Name, r.id)
	}

	start := time.Now()
	final, err := w.loop(ctx, r, root)

	if rl, ok := r.logger.(runLogger); ok {
		rl.LogRun(r.steps, time.Since(start), err == nil, err)
	} else if err != nil {
		r.logger.Error("workflow.run.failed", "run.id", r.id, "step_count", r.steps, "error", err)
	} else {
		r.logger.Info("workflow.run.completed", "run.id", r.id, "step_count", r.steps)
	}

	return final, err
}

func (w *Workflow) loop(ctx context.Context, r *run, root core.WorkflowState) (core.WorkflowState, error) {
	root = root.Clone()
	if err := w.check(root); err != nil {
		return root, err
	}

	begin := EventStart
	if r.resumed {
		begin = EventResume
	}
	w.observe(ctx, r, transition{event: begin, agent: root.Agent, depth: root.Depth()}, root)

	for root.Status != core.StatusFinished {
		if err := ctx.Err(); err != nil {
			return root, err
		}

		if _, ok := nextTurn(root); ok && w.exhausted(r, root) {
			if r.fallback || w.opts.Fallback == "" {
				return root, fmt.Errorf("%w after %d steps", core.ErrStepLimitExceeded, r.steps)
			}
			root = w.engageFallback(r, root)
			r.steps++
			w.observe(ctx, r, transition{event: EventFallback, agent: root.Agent, depth: 1}, root)
			continue
		}

		next, t, err := w.iterate(ctx, root, nil, 1)
		if err != nil {
			return root, err
		}
		root = next
		r.steps++
		w.observe(ctx, r, t, root)
	}

	w.observe(ctx, r, transition{event: EventFinish, agent: root.Agent, depth: 1}, root)

	return root, nil
}

// engageFallback hands the whole recorded tree to the fallback member and
// gives it a fresh budget.
func (w *Workflow) engageFallback(r *run, root core.WorkflowState) core.WorkflowState {
	r.logger.Warn("workflow.fallback",
		"run.id", r.id,
		"from", root.Agent,
		"fallback", w.opts.Fallback,
		"depth", root.Depth(),
		"step_count", r.steps,
	)

	next := core.Handoff(root, w.opts.Fallback, core.Flatten(root))
	next.Child = nil
	r.fallback = true
	r.limiter = w.newLimiter()
	return next
}

func (w *Workflow) observe(ctx context.Context, r *run, t transition, root core.WorkflowState) {
	if sl, ok := r.logger.(stepLogger); ok {
		sl.LogStep(r.steps, t.agent, string(t.event), t.depth)
	} else {
		r.logger.Debug("workflow.step", "run.id", r.id, "step", r.steps, "agent", t.agent, "event", string(t.event), "depth", t.depth)
	}

	if w.opts.Observer == nil {
		return
	}

	snap := Snapshot{
		RunID:    r.id,
		Workflow: w.opts.Name,
		Step:     r.steps,
		Event:    t.event,
		Agent:    t.agent,
		Depth:    t.depth,
		State:    root.Clone(),
		Time:     time.Now().UTC(),
	}
	if err := w.opts.Observer.Observe(ctx, snap); err != nil {
		r.logger.Warn("workflow.observer.failed", "run.id", r.id, "step", r.steps, "error", err)
	}
}
