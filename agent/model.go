package agent

import (
	"context"
	"strings"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/internal/util"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
)

var workerInstruction = util.Dedent(`
	Your job is to complete the assigned task:
	- You can break down complex tasks into multiple steps if needed.
	- You can use available tools if needed.

	If tool requires arguments, get them from the input, or use other tools to get them.
	Do not fabricate or assume information not present in the input.

	Try to complete the task on your own.
`)

// taskResultFormat is the structured reply of a worker turn: either a step
// (with an optional follow-up) or an error.
var taskResultFormat = &model.ResponseFormat{
	Name: "task_result",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type": "object",
						"properties": map[string]any{
							"kind":      map[string]any{"type": "string", "enum": []string{"step"}},
							"name":      map[string]any{"type": "string", "description": "The name of the step"},
							"result":    map[string]any{"type": "string", "description": "The result of the step"},
							"reasoning": map[string]any{"type": "string", "description": "The reasoning for this step"},
							"nextStep": map[string]any{
								"type":        []string{"string", "null"},
								"description": "The next step to complete the task, or null if task is complete",
							},
						},
						"required":             []string{"kind", "name", "result", "reasoning", "nextStep"},
						"additionalProperties": false,
					},
					map[string]any{
						"type": "object",
						"properties": map[string]any{
							"kind":      map[string]any{"type": "string", "enum": []string{"error"}},
							"reasoning": map[string]any{"type": "string", "description": "The reason why you cannot complete the task"},
						},
						"required":             []string{"kind", "reasoning"},
						"additionalProperties": false,
					},
				},
			},
		},
		"required":             []string{"response"},
		"additionalProperties": false,
	},
}

type taskResult struct {
	Response struct {
		Kind      string  `json:"kind"`
		Name      string  `json:"name"`
		Result    string  `json:"result"`
		Reasoning string  `json:"reasoning"`
		NextStep  *string `json:"nextStep"`
	} `json:"response"`
}

// ModelAgent is the general purpose worker. Each turn it asks its model
// to either request tools, report a step (optionally naming the next one)
// or declare the task impossible.
type ModelAgent struct {
	BaseAgent
}

// NewModelAgent creates a worker backed by provider.
func NewModelAgent(provider model.Provider, optFns ...func(o *Options)) *ModelAgent {
	base, _ := newBaseAgent(provider, workerInstruction, nil, optFns)
	return &ModelAgent{BaseAgent: base}
}

// Run implements Agent.
func (a *ModelAgent) Run(ctx context.Context, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, error) {
	if next, ok, err := a.custom(ctx, a, state, history, team); ok {
		return next, err
	}

	instruction, err := a.systemPrompt(ctx, state, team)
	if err != nil {
		return state, err
	}

	system := instruction
	if a.description != "" {
		system = strings.TrimSpace(a.description) + "\n\n" + instruction
	}

	messages := append([]core.Message{
		core.System(system),
		core.Response("What have been done so far?"),
		core.Request("Here is all the work done so far by other agents: " + toJSON(history)),
		core.Response("What do you want me to do now?"),
	}, state.Messages...)

	resp, err := a.complete(ctx, state.Agent, model.Request{
		Messages:       messages,
		Tools:          tool.Definitions(a.tools),
		ResponseFormat: taskResultFormat,
	})
	if err != nil {
		return state, err
	}

	if resp.HasToolCalls() {
		req := resp.Message.Clone()
		for i := range req.ToolCalls {
			if req.ToolCalls[i].ID == "" {
				req.ToolCalls[i].ID = core.NewID()
			}
		}
		a.logger.Debug("agent.run.suspend", "agent", state.Agent, "tool_calls", len(req.ToolCalls))
		return core.Suspend(state, req), nil
	}

	var result taskResult
	if err := decode(state.Agent, resp, &result); err != nil {
		return state, err
	}

	switch result.Response.Kind {
	case "error":
		return state, &core.TaskFailedError{Agent: state.Agent, Reason: result.Response.Reasoning}
	case "step":
	default:
		return state, core.ErrUnparseableResponse
	}

	answer := core.Response(result.Response.Result)
	if next := result.Response.NextStep; next != nil && strings.TrimSpace(*next) != "" {
		a.logger.Debug("agent.run.step", "agent", state.Agent, "step", result.Response.Name)
		return core.Continue(state, answer, core.Request(*next)), nil
	}

	a.logger.Debug("agent.run.finish", "agent", state.Agent, "step", result.Response.Name)
	return core.Finish(state, answer), nil
}
