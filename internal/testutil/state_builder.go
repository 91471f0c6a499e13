package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/teamwork/core"
)

// StateBuilder provides a fluent helper for constructing workflow states in
// tests. Example:
//
//	s := NewStateBuilder("supervisor").Request("plan").
//		Delegate("task", NewStateBuilder("writer")).Build()
//
// Status follows the last message unless set explicitly.
type StateBuilder struct {
	agent    string
	status   core.Status
	messages []core.Message
	child    *StateBuilder
	calls    int
}

// NewStateBuilder creates a builder for a state owned by agent.
func NewStateBuilder(agent string) *StateBuilder {
	return &StateBuilder{agent: agent}
}

// Request appends a user message (chainable).
func (b *StateBuilder) Request(text string) *StateBuilder {
	b.messages = append(b.messages, core.Request(text))
	return b
}

// Response appends an assistant message (chainable).
func (b *StateBuilder) Response(text string) *StateBuilder {
	b.messages = append(b.messages, core.Response(text))
	return b
}

// Call appends a tool call request for name with args encoded as JSON. Call
// ids are generated as c1, c2, ... (chainable).
func (b *StateBuilder) Call(name string, args map[string]any) *StateBuilder {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	b.calls++
	b.messages = append(b.messages, core.ToolCallRequest(core.ToolCall{
		ID:        fmt.Sprintf("c%d", b.calls),
		Name:      name,
		Arguments: raw,
	}))
	return b
}

// Delegate appends task as a request and attaches child, which receives the
// same request as its first message (chainable).
func (b *StateBuilder) Delegate(task string, child *StateBuilder) *StateBuilder {
	b.messages = append(b.messages, core.Request(task))
	child.messages = append([]core.Message{core.Request(task)}, child.messages...)
	b.child = child
	return b
}

// Status overrides the derived status (chainable).
func (b *StateBuilder) Status(s core.Status) *StateBuilder {
	b.status = s
	return b
}

// Build returns the state. Without an explicit status a trailing tool call
// request yields paused and anything else running.
func (b *StateBuilder) Build() core.WorkflowState {
	s := core.NewState(b.agent, b.messages...)
	switch {
	case b.status != "":
		s.Status = b.status
	case len(b.messages) > 0 && b.messages[len(b.messages)-1].IsToolCallRequest():
		s.Status = core.StatusPaused
	}
	if b.child != nil {
		child := b.child.Build()
		s.Child = &child
	}
	return s
}
