package core

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part represents a structured segment of message content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) isPart() {}

// ImagePart references an image either by remote URL or data URL
// (data:image/jpeg;base64,...).
type ImagePart struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "low" | "high" | ""
}

func (ImagePart) isPart() {}

// ToolCall is a model-issued request to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one entry of a conversation. Ordering within a state is
// significant. Assistant messages may carry tool calls, tool messages carry
// the id of the call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Parts      []Part     `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// IsToolCallRequest reports whether the message asks for tool execution.
func (m Message) IsToolCallRequest() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	c := m
	if m.Parts != nil {
		c.Parts = append([]Part(nil), m.Parts...)
	}
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			c.ToolCalls[i] = tc
			if tc.Arguments != nil {
				c.ToolCalls[i].Arguments = append(json.RawMessage(nil), tc.Arguments...)
			}
		}
	}
	return c
}

// Request builds a user message carrying a task or instruction.
func Request(text string) Message { return Message{Role: RoleUser, Content: text} }

// Response builds an assistant message carrying a result.
func Response(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// System builds a system message.
func System(text string) Message { return Message{Role: RoleSystem, Content: text} }

// ToolResult builds the tool-role message answering the call with the given id.
func ToolResult(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// ToolCallRequest builds an assistant message requesting the given calls.
func ToolCallRequest(calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

// CloneMessages deep copies a message slice. A nil input yields nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

type partJSON struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	URL    string `json:"url,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type messageJSON struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Parts      []partJSON `json:"parts,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// MarshalJSON encodes parts with a "type" discriminator.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageJSON{Role: m.Role, Content: m.Content, ToolCalls: m.ToolCalls, ToolCallID: m.ToolCallID}
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			w.Parts = append(w.Parts, partJSON{Type: "text", Text: v.Text})
		case ImagePart:
			w.Parts = append(w.Parts, partJSON{Type: "image", URL: v.URL, Detail: v.Detail})
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the representation produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{Role: w.Role, Content: w.Content, ToolCalls: w.ToolCalls, ToolCallID: w.ToolCallID}
	for _, p := range w.Parts {
		switch p.Type {
		case "text":
			m.Parts = append(m.Parts, TextPart{Text: p.Text})
		case "image":
			m.Parts = append(m.Parts, ImagePart{URL: p.URL, Detail: p.Detail})
		default:
			return fmt.Errorf("unknown message part type %q", p.Type)
		}
	}
	return nil
}

// NewID returns a random identifier for runs and tool calls.
func NewID() string { return uuid.NewString() }
