package core

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAgent is returned when a state or handoff names an agent
	// that is not a member of the team.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrProtocol marks a violated state machine contract, for example a
	// paused state whose last message is not a tool call request.
	ErrProtocol = errors.New("protocol violation")
	// ErrUnknownTool is returned when a tool call names a tool the agent
	// does not own.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnparseableResponse is returned when a model reply lacks the
	// expected structured payload.
	ErrUnparseableResponse = errors.New("no parsed response received")
	// ErrStepLimitExceeded is returned when a run exhausts its step budget
	// and no fallback can take over.
	ErrStepLimitExceeded = errors.New("exceeded max steps")
)

// TaskFailedError reports that the model itself declared the task
// impossible. Reason is the model's explanation, verbatim.
type TaskFailedError struct {
	Agent  string
	Reason string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("agent %s failed: %s", e.Agent, e.Reason)
}
