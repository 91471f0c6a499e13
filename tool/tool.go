// Package tool implements the tool calling subsystem: the Tool contract,
// schema validated function tools and the concurrent Executor that resolves
// a paused agent turn.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/internal/util"
	"github.com/hupe1980/teamwork/logging"
	"github.com/hupe1980/teamwork/model"
)

// Error codes attached to *Error.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodePanic      = "PANIC"
)

// Tool is a named capability an agent can invoke. The name is the key under
// which the tool is registered with its agent.
//
// Implementations must not mutate workflow state; their only output is the
// returned content. They should be safe for concurrent use since calls of
// the same turn run in parallel.
type Tool interface {
	// Description tells the model when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Execute runs the tool with decoded and validated arguments.
	Execute(ctx context.Context, args map[string]any, tc Context) (string, error)
}

// Context is the read-only view a tool gets of its invocation.
type Context struct {
	// Provider is the invoking agent's model provider.
	Provider model.Provider
	// Messages is the agent's history excluding the pending tool call request.
	Messages []core.Message
	// CallID correlates the execution with the model's tool call.
	CallID string
	// Name is the tool name the model used.
	Name   string
	Logger logging.Logger
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error represents a failure during tool execution.
type Error struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes an underlying error stored in Details.
func (e *Error) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewError creates a new Error with the specified details.
func NewError(tool, message, code string) *Error {
	return &Error{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Definitions converts a tool set into model tool definitions sorted by name.
func Definitions(tools map[string]Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, name := range sortedNames(tools) {
		t := tools[name]
		defs = append(defs, model.ToolDefinition{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}
