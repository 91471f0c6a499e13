package core

import (
	"fmt"
)

// Status is the lifecycle position of a WorkflowState.
type Status string

const (
	// StatusRunning means the owning agent should be invoked next.
	StatusRunning Status = "running"
	// StatusPaused means the last message requests tools that must be resolved.
	StatusPaused Status = "paused"
	// StatusFinished is terminal for the state value.
	StatusFinished Status = "finished"
)

// WorkflowState is a recursive unit of work: one agent, its private message
// log and an optional delegated sub-task. Values are never mutated by the
// helpers in this package; every transition returns a new value.
type WorkflowState struct {
	Agent    string         `json:"agent"`
	Status   Status         `json:"status"`
	Messages []Message      `json:"messages"`
	Child    *WorkflowState `json:"child,omitempty"`
}

// NewState creates a running state for agent seeded with msgs.
func NewState(agent string, msgs ...Message) WorkflowState {
	return WorkflowState{Agent: agent, Status: StatusRunning, Messages: CloneMessages(msgs)}
}

// Clone deep copies the state including its child chain.
func (s WorkflowState) Clone() WorkflowState {
	c := s
	c.Messages = CloneMessages(s.Messages)
	if s.Child != nil {
		child := s.Child.Clone()
		c.Child = &child
	}
	return c
}

// LastMessage returns the final message of the state, if any.
func (s WorkflowState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Depth returns the number of states in the child chain including s.
func (s WorkflowState) Depth() int {
	d := 1
	for c := s.Child; c != nil; c = c.Child {
		d++
	}
	return d
}

// Finish returns a finished copy of state whose only message is msg.
func Finish(state WorkflowState, msg Message) WorkflowState {
	next := state.Clone()
	next.Status = StatusFinished
	next.Messages = []Message{msg.Clone()}
	next.Child = nil
	return next
}

// Handoff transfers the work to agent with a fresh message log.
func Handoff(state WorkflowState, agent string, msgs []Message) WorkflowState {
	next := state.Clone()
	next.Agent = agent
	next.Status = StatusRunning
	next.Messages = CloneMessages(msgs)
	return next
}

// Continue appends msgs and keeps the state running.
func Continue(state WorkflowState, msgs ...Message) WorkflowState {
	next := state.Clone()
	next.Status = StatusRunning
	next.Messages = append(next.Messages, CloneMessages(msgs)...)
	return next
}

// Suspend appends a tool-call request and pauses the state.
func Suspend(state WorkflowState, req Message) WorkflowState {
	next := state.Clone()
	next.Status = StatusPaused
	next.Messages = append(next.Messages, req.Clone())
	return next
}

// Delegate records the request in the parent and attaches child as pending
// sub-task. The parent stays running.
func Delegate(state WorkflowState, req Message, child WorkflowState) WorkflowState {
	next := Continue(state, req)
	c := child.Clone()
	next.Child = &c
	return next
}

// ResumeWithResults appends tool results to a paused state and sets it
// running again.
func ResumeWithResults(state WorkflowState, results []Message) WorkflowState {
	return Continue(state, results...)
}

// Merge folds a finished child into its parent: the child's final message
// is appended, the child cleared and the parent set running.
func Merge(parent WorkflowState) (WorkflowState, error) {
	if parent.Child == nil {
		return parent, fmt.Errorf("%w: no child to merge", ErrProtocol)
	}
	if parent.Child.Status != StatusFinished {
		return parent, fmt.Errorf("%w: child %q is %s", ErrProtocol, parent.Child.Agent, parent.Child.Status)
	}
	next := parent.Clone()
	if last, ok := parent.Child.LastMessage(); ok {
		next.Messages = append(next.Messages, last.Clone())
	}
	next.Child = nil
	next.Status = StatusRunning
	return next, nil
}

// Flatten returns the messages of s and all its descendants, outermost first.
func Flatten(s WorkflowState) []Message {
	var out []Message
	for cur := &s; cur != nil; cur = cur.Child {
		out = append(out, CloneMessages(cur.Messages)...)
	}
	return out
}

// Validate checks the structural invariants of a single state value.
func Validate(s WorkflowState) error {
	if s.Agent == "" {
		return fmt.Errorf("%w: state has no agent", ErrProtocol)
	}
	last, ok := s.LastMessage()
	pending := ok && last.IsToolCallRequest()
	switch s.Status {
	case StatusPaused:
		if !pending {
			return fmt.Errorf("%w: agent %q paused without a tool call request", ErrProtocol, s.Agent)
		}
		if s.Child != nil {
			return fmt.Errorf("%w: agent %q paused with a pending child", ErrProtocol, s.Agent)
		}
	case StatusRunning:
		if pending {
			return fmt.Errorf("%w: agent %q has unresolved tool calls but is running", ErrProtocol, s.Agent)
		}
	case StatusFinished:
		if pending {
			return fmt.Errorf("%w: agent %q finished with unresolved tool calls", ErrProtocol, s.Agent)
		}
		if s.Child != nil {
			return fmt.Errorf("%w: agent %q finished with a pending child", ErrProtocol, s.Agent)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrProtocol, s.Status)
	}
	if s.Child != nil {
		return Validate(*s.Child)
	}
	return nil
}
