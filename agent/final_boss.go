package agent

import (
	"context"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/internal/util"
	"github.com/hupe1980/teamwork/model"
)

// DefaultFallback is the conventional team name of the FinalBoss.
const DefaultFallback = "finalBoss"

var finalBossRequest = util.Dedent(`
	Please summarize all executed steps and do your best to achieve
	the main goal while responding with the final answer
`)

var finalAnswerFormat = &model.ResponseFormat{
	Name: "task_result",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"finalAnswer": map[string]any{"type": "string", "description": "The final result of the task"},
		},
		"required":             []string{"finalAnswer"},
		"additionalProperties": false,
	},
}

// FinalBoss is the fallback that closes a workflow which ran out of steps.
// It summarizes the recorded work (history plus its own messages) and
// always finishes.
type FinalBoss struct {
	BaseAgent
}

// NewFinalBoss creates a fallback agent backed by provider.
func NewFinalBoss(provider model.Provider, optFns ...func(o *Options)) *FinalBoss {
	base, _ := newBaseAgent(provider, "You exceeded max steps.", nil, optFns)
	return &FinalBoss{BaseAgent: base}
}

// Run implements Agent.
func (a *FinalBoss) Run(ctx context.Context, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, error) {
	if next, ok, err := a.custom(ctx, a, state, history, team); ok {
		return next, err
	}

	system, err := a.systemPrompt(ctx, state, team)
	if err != nil {
		return state, err
	}

	messages := []core.Message{core.System(system)}
	messages = append(messages, history...)
	messages = append(messages, state.Messages...)
	messages = append(messages, core.Request(finalBossRequest))

	resp, err := a.complete(ctx, state.Agent, model.Request{
		Messages:       messages,
		ResponseFormat: finalAnswerFormat,
	})
	if err != nil {
		return state, err
	}

	var out struct {
		FinalAnswer string `json:"finalAnswer"`
	}
	if err := decode(state.Agent, resp, &out); err != nil {
		return state, err
	}

	return core.Finish(state, core.Response(out.FinalAnswer)), nil
}
