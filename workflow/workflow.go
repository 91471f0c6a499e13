package workflow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/teamwork/agent"
	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
)

// Default member names and limits.
const (
	DefaultSupervisor = "supervisor"
	DefaultMaxSteps   = 50
)

// StepPolicy decides before an agent turn whether the run has exhausted its
// budget and must be handed to the fallback. step counts agent turns of
// the run so far, starting at 1 for the turn about to happen.
type StepPolicy func(step int, root core.WorkflowState) bool

// MaxSteps returns a policy that engages the fallback once more than n
// agent turns were requested. n <= 0 never engages it.
func MaxSteps(n int) StepPolicy {
	return func(step int, _ core.WorkflowState) bool {
		return n > 0 && step > n
	}
}

// Options configures a Workflow.
type Options struct {
	// Name identifies the workflow in logs and snapshots.
	Name string
	// Description is what the team should achieve.
	Description string
	// Knowledge is background information shared with the team.
	Knowledge string
	// Output describes the expected result.
	Output string

	// MaxSteps bounds agent turns before the fallback takes over; ignored
	// when StepPolicy is set.
	MaxSteps   int
	StepPolicy StepPolicy

	// Supervisor is the member owning the root state.
	Supervisor string
	// Fallback is the member that closes a run out of steps; empty disables
	// the fallback and exhausting the budget fails the run.
	Fallback string

	// Provider, when set, backs the built-in supervisor, resource planner
	// and final boss for any of those names missing from the team.
	Provider model.Provider

	Observer Observer
	Executor *tool.Executor
	Logger   logging.Logger
}

// Workflow binds a team to a task description. It is immutable after New
// and may be run any number of times.
type Workflow struct {
	team agent.Team
	opts Options
}

// New validates the team and fills in defaults.
func New(team agent.Team, optFns ...func(o *Options)) (*Workflow, error) {
	opts := Options{
		Name:       "workflow",
		MaxSteps:   DefaultMaxSteps,
		Supervisor: DefaultSupervisor,
		Fallback:   agent.DefaultFallback,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Executor == nil {
		logger := opts.Logger
		opts.Executor = tool.NewExecutor(func(o *tool.ExecutorOptions) { o.Logger = logger })
	}

	members := make(agent.Team, len(team)+3)
	for name, a := range team {
		members[name] = a
	}

	if p := opts.Provider; p != nil {
		agentOpts := func(o *agent.Options) { o.Logger = opts.Logger }
		if !members.Has(opts.Supervisor) {
			members[opts.Supervisor] = agent.NewSupervisor(p, agentOpts)
		}
		if !members.Has(agent.DefaultPlanner) {
			members[agent.DefaultPlanner] = agent.NewResourcePlanner(p, agentOpts)
		}
		if opts.Fallback != "" && !members.Has(opts.Fallback) {
			members[opts.Fallback] = agent.NewFinalBoss(p, agentOpts)
		}
	}

	if !members.Has(opts.Supervisor) {
		return nil, fmt.Errorf("%w: supervisor %q is not a team member", core.ErrUnknownAgent, opts.Supervisor)
	}
	if opts.Fallback != "" && !members.Has(opts.Fallback) {
		return nil, fmt.Errorf("%w: fallback %q is not a team member", core.ErrUnknownAgent, opts.Fallback)
	}
	for name, a := range members {
		if a == nil {
			return nil, fmt.Errorf("%w: member %q is nil", core.ErrUnknownAgent, name)
		}
	}

	return &Workflow{team: members, opts: opts}, nil
}

// With returns a copy of the workflow with optFns applied to its options.
// The team is kept as is.
func (w *Workflow) With(optFns ...func(o *Options)) *Workflow {
	opts := w.opts
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Workflow{team: w.team, opts: opts}
}

// Team returns the full team including built-in members.
func (w *Workflow) Team() agent.Team { return w.team }

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.opts.Name }

// RootState returns the initial state of a run: the supervisor holding the
// user's request.
func (w *Workflow) RootState() core.WorkflowState {
	return core.NewState(w.opts.Supervisor, core.Request(w.request()))
}

func (w *Workflow) request() string {
	var b strings.Builder
	b.WriteString("Here is description of the workflow and expected output by the user:\n")
	fmt.Fprintf(&b, "<workflow>%s</workflow>\n", strings.TrimSpace(w.opts.Description))
	fmt.Fprintf(&b, "<output>%s</output>", strings.TrimSpace(w.opts.Output))
	if k := strings.TrimSpace(w.opts.Knowledge); k != "" {
		b.WriteString("\nHere is all the knowledge available:\n")
		fmt.Fprintf(&b, "<knowledge>%s</knowledge>", k)
	}
	return b.String()
}

// Solution returns the content of the final message of a finished state.
func Solution(state core.WorkflowState) string {
	last, ok := state.LastMessage()
	if !ok {
		return ""
	}
	return last.Content
}
