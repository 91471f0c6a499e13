package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/internal/util"
	"github.com/hupe1980/teamwork/model"
)

var routerInstruction = util.Dedent(`
	You are an agent selector that matches tasks to the most capable agent.
	Analyze the task requirements and each agent's capabilities to select the best match.

	Consider:
	1. Required tools and skills
	2. Agent's specialization
	3. Model capabilities
	4. Previous task context if available
`)

type agentSelection struct {
	Agent     string `json:"agent"`
	Reasoning string `json:"reasoning"`
}

// ResourcePlanner routes a task to the best suited team member by handing
// its state off to that member.
type ResourcePlanner struct {
	BaseAgent
}

// NewResourcePlanner creates a router backed by provider. The selection is
// closed over Candidates of the team at run time.
func NewResourcePlanner(provider model.Provider, optFns ...func(o *Options)) *ResourcePlanner {
	base, _ := newBaseAgent(provider, routerInstruction, model.Float(0.1), optFns)
	return &ResourcePlanner{BaseAgent: base}
}

// Candidates returns the members a task can be routed to: every member
// except undescribed coordinators (supervisors, routers and fallbacks), or
// all members when that leaves none. Giving a coordinator a description
// makes it routable.
func Candidates(team Team) []string {
	var names []string
	for _, name := range team.Names() {
		if isCoordinator(team[name]) && team[name].Description() == "" {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return team.Names()
	}
	return names
}

func isCoordinator(a Agent) bool {
	switch a.(type) {
	case *Supervisor, *ResourcePlanner, *FinalBoss:
		return true
	}
	return false
}

// Run implements Agent.
func (a *ResourcePlanner) Run(ctx context.Context, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, error) {
	if next, ok, err := a.custom(ctx, a, state, history, team); ok {
		return next, err
	}

	candidates := Candidates(team)
	if len(candidates) == 0 {
		return state, fmt.Errorf("%w: team is empty", core.ErrUnknownAgent)
	}

	system, err := a.systemPrompt(ctx, state, team)
	if err != nil {
		return state, err
	}

	var listing strings.Builder
	listing.WriteString("Here are the available agents:\n<agents>\n")
	for _, name := range candidates {
		fmt.Fprintf(&listing, "  <agent name=%q>%s</agent>\n", name, strings.TrimSpace(team[name].Description()))
	}
	listing.WriteString("</agents>")

	messages := []core.Message{
		core.System(system),
		core.Request(listing.String()),
		core.Response("What is the task?"),
	}
	messages = append(messages, state.Messages...)

	resp, err := a.complete(ctx, state.Agent, model.Request{
		Messages: messages,
		ResponseFormat: &model.ResponseFormat{
			Name: "agent_selection",
			Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent":     map[string]any{"type": "string", "enum": candidates},
					"reasoning": map[string]any{"type": "string"},
				},
				"required":             []string{"agent", "reasoning"},
				"additionalProperties": false,
			},
		},
	})
	if err != nil {
		return state, err
	}

	var sel agentSelection
	if err := decode(state.Agent, resp, &sel); err != nil {
		return state, err
	}

	if !slices.Contains(candidates, sel.Agent) {
		return state, fmt.Errorf("%w: %q selected by %s", core.ErrUnknownAgent, sel.Agent, state.Agent)
	}

	a.logger.Debug("agent.router.select", "agent", state.Agent, "selected", sel.Agent, "reasoning", sel.Reasoning)

	return core.Handoff(state, sel.Agent, state.Messages), nil
}
