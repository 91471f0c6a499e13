package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/model"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaxParallel bounds concurrent calls of one turn; 0 means one goroutine
	// per call.
	MaxParallel int
	Logger      logging.Logger
}

type toolLogger interface {
	LogToolCall(tool string, dur time.Duration, success bool, err error)
}

// Executor resolves the tool calls of a paused agent turn. Calls run
// concurrently, results come back in the order the model issued them.
type Executor struct {
	opts ExecutorOptions
}

// NewExecutor constructs an Executor.
func NewExecutor(optFns ...func(o *ExecutorOptions)) *Executor {
	opts := ExecutorOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if tl, ok := opts.Logger.(*logging.TeamworkLogger); ok {
		opts.Logger = tl.WithComponent("tool")
	}
	return &Executor{opts: opts}
}

// Execute runs every call of the final message of messages and returns one
// tool-result message per call, correlated by call id. The final message
// must be a tool call request and every call must name a tool in tools.
// The first failing call aborts the batch.
func (e *Executor) Execute(
	ctx context.Context,
	tools map[string]Tool,
	provider model.Provider,
	messages []core.Message,
) ([]core.Message, error) {
	if len(messages) == 0 || !messages[len(messages)-1].IsToolCallRequest() {
		return nil, fmt.Errorf("%w: invalid tool request", core.ErrProtocol)
	}

	req := messages[len(messages)-1]
	history := core.CloneMessages(messages[:len(messages)-1])

	// resolve every name before running anything
	for _, call := range req.ToolCalls {
		if _, ok := tools[call.Name]; !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrUnknownTool, call.Name)
		}
	}

	logger := e.opts.Logger
	results := make([]core.Message, len(req.ToolCalls))
	batchStart := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxParallel > 0 {
		g.SetLimit(e.opts.MaxParallel)
	}

	for i, call := range req.ToolCalls {
		g.Go(func() error {
			tc := Context{
				Provider: provider,
				Messages: history,
				CallID:   call.ID,
				Name:     call.Name,
				Logger:   logger,
			}

			start := time.Now()
			content, err := e.executeOne(gctx, tools[call.Name], call, tc)

			logCall(logger, call, time.Since(start), err)
			if err != nil {
				return err
			}

			results[i] = core.ToolResult(call.ID, content)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Debug(
		"tool.batch.complete",
		"count", len(req.ToolCalls),
		"max_parallel", e.opts.MaxParallel,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results, nil
}

func logCall(logger logging.Logger, call core.ToolCall, dur time.Duration, err error) {
	if tl, ok := logger.(*logging.TeamworkLogger); ok {
		logger = tl.WithContext("call_id", call.ID)
	}
	if l, ok := logger.(toolLogger); ok {
		l.LogToolCall(call.Name, dur, err == nil, err)
		return
	}
	if err != nil {
		logger.Error("tool.call.failed", "tool_name", call.Name, "call_id", call.ID, "duration_ms", dur.Milliseconds(), "error", err)
		return
	}
	logger.Info("tool.call.completed", "tool_name", call.Name, "call_id", call.ID, "duration_ms", dur.Milliseconds())
}

func (e *Executor) executeOne(ctx context.Context, t Tool, call core.ToolCall, tc Context) (content string, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.opts.Logger.Error("tool.call.panic", "tool", call.Name, "recover", r)
			err = &Error{Tool: call.Name, Message: fmt.Sprintf("panic: %v", r), Code: CodePanic, Details: string(debug.Stack())}
		}
	}()

	args, err := decodeArguments(call)
	if err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	return t.Execute(ctx, args, tc)
}

func decodeArguments(call core.ToolCall) (map[string]any, error) {
	args := map[string]any{}
	if len(call.Arguments) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, &Error{
			Tool:    call.Name,
			Message: fmt.Sprintf("failed to unmarshal arguments: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func sortedNames(tools map[string]Tool) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
