package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
)

// Options configures every agent constructor in this package. Fields a
// variant does not use are ignored.
type Options struct {
	// Description tells routers what the agent is good at and opens the
	// worker's system prompt.
	Description string
	// Instruction overrides the variant's built-in system instruction.
	Instruction *Instruction
	Tools       map[string]tool.Tool
	// Temperature overrides the variant's sampling temperature.
	Temperature *float64
	// Run replaces the variant's behaviour entirely.
	Run RunFunc
	// Planner is the team member a supervisor delegates new tasks to.
	Planner string
	Logger  logging.Logger
}

type llmLogger interface {
	LogLLMCall(modelName string, tokens int, dur time.Duration, success bool, err error)
}

// BaseAgent holds what every variant shares: identity, tools, provider and
// an optional custom run function. Embed it and implement Run.
type BaseAgent struct {
	description string
	instruction Instruction
	tools       map[string]tool.Tool
	provider    model.Provider
	temperature *float64
	run         RunFunc
	logger      logging.Logger
}

func newBaseAgent(provider model.Provider, defaultInstruction string, defaultTemperature *float64, optFns []func(o *Options)) (BaseAgent, Options) {
	opts := Options{
		Tools:       map[string]tool.Tool{},
		Temperature: defaultTemperature,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if tl, ok := opts.Logger.(*logging.TeamworkLogger); ok {
		opts.Logger = tl.WithComponent("agent")
	}

	instruction := NewInstructionFromText(defaultInstruction)
	if opts.Instruction != nil {
		instruction = *opts.Instruction
	}

	return BaseAgent{
		description: opts.Description,
		instruction: instruction,
		tools:       opts.Tools,
		provider:    provider,
		temperature: opts.Temperature,
		run:         opts.Run,
		logger:      opts.Logger,
	}, opts
}

// Description returns what the agent is good at.
func (b *BaseAgent) Description() string { return b.description }

// Tools returns the agent's tool set keyed by tool name.
func (b *BaseAgent) Tools() map[string]tool.Tool { return b.tools }

// Provider returns the model provider the agent and its tools use.
func (b *BaseAgent) Provider() model.Provider { return b.provider }

// custom dispatches to an Options.Run override if one was configured.
func (b *BaseAgent) custom(ctx context.Context, self Agent, state core.WorkflowState, history []core.Message, team Team) (core.WorkflowState, bool, error) {
	if b.run == nil {
		return core.WorkflowState{}, false, nil
	}
	next, err := b.run(ctx, self, state, history, team)
	return next, true, err
}

func (b *BaseAgent) systemPrompt(ctx context.Context, state core.WorkflowState, team Team) (string, error) {
	return b.instruction.Resolve(ctx, map[string]any{
		"agent":       state.Agent,
		"description": b.description,
		"team":        team.Names(),
		"tools":       toolNames(b.tools),
	})
}

// complete calls the provider and logs the round trip.
func (b *BaseAgent) complete(ctx context.Context, agent string, req model.Request) (*model.Response, error) {
	if b.provider == nil {
		return nil, fmt.Errorf("agent %s has no model provider", agent)
	}
	if b.temperature != nil && req.Temperature == nil {
		req.Temperature = b.temperature
	}

	start := time.Now()
	resp, err := b.provider.Completions(ctx, req)

	tokens := 0
	if err == nil && resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	b.logCall(agent, tokens, time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", agent, err)
	}

	return resp, nil
}

func (b *BaseAgent) logCall(agent string, tokens int, dur time.Duration, err error) {
	logger := b.logger
	if tl, ok := logger.(*logging.TeamworkLogger); ok {
		logger = tl.WithContext("agent", agent)
	}

	name := b.provider.Info().Name
	if l, ok := logger.(llmLogger); ok {
		l.LogLLMCall(name, tokens, dur, err == nil, err)
		return
	}
	if err != nil {
		logger.Error("llm.call.failed", "agent", agent, "model", name, "duration_ms", dur.Milliseconds(), "error", err)
		return
	}
	logger.Debug("llm.call.completed", "agent", agent, "model", name, "token_count", tokens, "duration_ms", dur.Milliseconds())
}

// decode reads a structured reply, tagging failures with the agent name.
func decode(agent string, resp *model.Response, v any) error {
	if err := resp.Decode(v); err != nil {
		return fmt.Errorf("agent %s: %w", agent, err)
	}
	return nil
}

func toJSON(msgs []core.Message) string {
	if msgs == nil {
		msgs = []core.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func toolNames(tools map[string]tool.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, d := range tool.Definitions(tools) {
		names = append(names, d.Name)
	}
	return names
}
