package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/internal/util"
	"github.com/hupe1980/teamwork/model"
)

// DefaultPlanner is the team member a supervisor hands new tasks to.
const DefaultPlanner = "resourcePlanner"

var supervisorInstruction = util.Dedent(`
	You are a planner that breaks down complex workflows into smaller, actionable steps.
	Your job is to determine the next task that needs to be done based on the original workflow and what has been completed so far.
	If all required tasks are completed, return null.

	Rules:
	1. Each task should be self-contained and achievable
	2. Tasks should be specific and actionable
	3. Return null when the workflow is complete
	4. Consider dependencies and order of operations
	5. Use context from completed tasks to inform next steps
`)

var nextTaskFormat = &model.ResponseFormat{
	Name: "next_task",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task": map[string]any{
				"type":        []string{"string", "null"},
				"description": "The next task to be completed or null if the workflow is complete",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "The reasoning for selecting the next task or why the workflow is complete",
			},
		},
		"required":             []string{"task", "reasoning"},
		"additionalProperties": false,
	},
}

type nextTask struct {
	Task      *string `json:"task"`
	Reasoning string  `json:"reasoning"`
}

// Supervisor decomposes the workflow into tasks. Each turn it either
// delegates the next task to its planner as a child state or declares the
// workflow complete.
type Supervisor struct {
	BaseAgent
	planner string
}

// NewSupervisor creates a supervisor backed by provider.
func NewSupervisor(provider model.Provider, optFns ...func(o *Options)) *Supervisor {
	base, opts := newBaseAgent(provider, supervisorInstruction, model.Float(0.2), optFns)
	planner := opts.Planner
	if planner == "" {
		planner = DefaultPlanner
	}
	return &Supervisor{BaseAgent: base, planner: planner}
}

// Planner returns the name of the member receiving delegated tasks.
func (a *Supervisor) Planner() string { return a.planner }

// Run implements Agent.
func (a *Supervisor) Run(ctx context.Context, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, error) {
	if next, ok, err := a.custom(ctx, a, state, history, team); ok {
		return next, err
	}

	if !team.Has(a.planner) {
		return state, fmt.Errorf("%w: planner %q", core.ErrUnknownAgent, a.planner)
	}

	system, err := a.systemPrompt(ctx, state, team)
	if err != nil {
		return state, err
	}

	messages := []core.Message{core.System(system), core.Response("What is the request?")}
	messages = append(messages, history...)
	messages = append(messages, state.Messages...)

	resp, err := a.complete(ctx, state.Agent, model.Request{
		Messages:       messages,
		ResponseFormat: nextTaskFormat,
	})
	if err != nil {
		return state, err
	}

	var out nextTask
	if err := decode(state.Agent, resp, &out); err != nil {
		return state, err
	}

	if out.Task == nil || strings.TrimSpace(*out.Task) == "" {
		a.logger.Debug("agent.supervisor.complete", "agent", state.Agent, "reasoning", out.Reasoning)
		done := state.Clone()
		done.Status = core.StatusFinished
		done.Child = nil
		return done, nil
	}

	task := core.Request(*out.Task)
	a.logger.Debug("agent.supervisor.delegate", "agent", state.Agent, "planner", a.planner, "task", *out.Task)

	return core.Delegate(state, task, core.NewState(a.planner, task)), nil
}
