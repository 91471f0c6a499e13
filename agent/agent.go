package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
)

// Agent advances a WorkflowState by one logical step.
//
// Run receives the state it owns, the messages of surrounding work supplied
// by the driver and the team (for routing decisions). It returns exactly one
// of: a continuation (running, messages appended), a suspension (paused,
// tool call request appended), a completion (finished) or a delegation
// (running with a child). Agents hold no per-run state.
type Agent interface {
	Description() string
	Tools() map[string]tool.Tool
	Provider() model.Provider
	Run(ctx context.Context, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, error)
}

// RunFunc replaces the built-in behaviour of an agent. It receives the agent
// itself so custom logic can reach its provider and tools.
type RunFunc func(ctx context.Context, self Agent, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, error)

// Team is the set of agents available to a workflow, keyed by name.
type Team map[string]Agent

// Names returns the member names in sorted order.
func (t Team) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named member or an error wrapping core.ErrUnknownAgent.
func (t Team) Get(name string) (Agent, error) {
	a, ok := t[name]
	if !ok || a == nil {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownAgent, name)
	}
	return a, nil
}

// Has reports whether name is a member.
func (t Team) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// With returns a copy of the team with a added under name.
func (t Team) With(name string, a Agent) Team {
	out := make(Team, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[name] = a
	return out
}
