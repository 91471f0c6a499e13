package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/teamwork/internal/util"
	"github.com/hupe1980/teamwork/logging"
)

// Func is the signature wrapped by FunctionTool. Arguments are already
// validated; string results are used verbatim, anything else is JSON encoded.
type Func func(ctx context.Context, args map[string]any, tc Context) (any, error)

// FunctionTool is a generic adapter that exposes a plain Go function as a tool.
//
// Error semantics:
//
//	*Error (returned directly)  -> forwarded unchanged
//	validation failure          -> *Error{Code: VALIDATION_ERROR}
//	other error                 -> *Error{Code: EXECUTION_ERROR}
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	description string
	parameters  map[string]any
	fn          Func
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sum := tool.NewFunctionTool(
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any, tc tool.Context) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(description string, parameters map[string]any, fn Func) *FunctionTool {
	return &FunctionTool{
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema for supported tags).
func NewFunctionToolFromStruct(description string, structType any, fn Func) *FunctionTool {
	return NewFunctionTool(description, util.CreateSchema(structType), fn)
}

// Description returns the natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Execute applies schema defaults, validates args and invokes the function.
func (t *FunctionTool) Execute(ctx context.Context, args map[string]any, tc Context) (string, error) {
	logger := tc.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	start := time.Now()

	logger.Debug("tool.call.start", "tool", tc.Name, "call_id", tc.CallID)

	if args == nil {
		args = map[string]any{}
	}
	args = util.ApplyDefaults(args, t.parameters)

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", tc.Name, "error", err.Error())

		return "", &Error{
			Tool:    tc.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args, tc)
	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			logger.Error("tool.call.error", "tool", tc.Name, "error", toolErr.Message)

			return "", toolErr
		}

		logger.Error("tool.call.error", "tool", tc.Name, "error", err.Error())

		return "", &Error{
			Tool:    tc.Name,
			Message: err.Error(),
			Code:    CodeExecution,
			Details: err,
		}
	}

	content, err := stringify(result)
	if err != nil {
		return "", &Error{Tool: tc.Name, Message: err.Error(), Code: CodeExecution, Details: err}
	}

	logger.Info("tool.call.success", "tool", tc.Name, "duration_ms", time.Since(start).Milliseconds())

	return content, nil
}

func stringify(v any) (string, error) {
	switch r := v.(type) {
	case nil:
		return "", nil
	case string:
		return r, nil
	case []byte:
		return string(r), nil
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		return string(data), nil
	}
}

// Bind decodes validated arguments into v, typically a pointer to the
// struct the schema was derived from.
func Bind(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
