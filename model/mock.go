package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/teamwork/core"
)

// MockProvider is a scripted in-memory Provider for tests and examples.
// Replies are consumed in order; every request is recorded.
type MockProvider struct {
	mu       sync.Mutex
	info     Info
	replies  []mockReply
	requests []Request
}

type mockReply struct {
	resp *Response
	err  error
}

// NewMockProvider constructs an empty MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{info: Info{Name: "mock", Provider: "mock", SupportsTools: true}}
}

// AddText queues a plain assistant reply.
func (m *MockProvider) AddText(text string) *MockProvider {
	return m.add(&Response{Message: core.Response(text), FinishReason: "stop"}, nil)
}

// AddJSON queues an assistant reply whose content is v encoded as JSON.
func (m *MockProvider) AddJSON(v any) *MockProvider {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("mock provider: %v", err))
	}
	return m.AddText(string(data))
}

// AddToolCalls queues a reply requesting the given tool calls.
func (m *MockProvider) AddToolCalls(calls ...core.ToolCall) *MockProvider {
	return m.add(&Response{Message: core.ToolCallRequest(calls...), FinishReason: "tool_calls"}, nil)
}

// AddError queues a failing call.
func (m *MockProvider) AddError(err error) *MockProvider { return m.add(nil, err) }

func (m *MockProvider) add(resp *Response, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{resp: resp, err: err})
	return m
}

// Completions implements Provider.
func (m *MockProvider) Completions(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return nil, fmt.Errorf("mock provider: no scripted reply left")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	if next.err != nil {
		return nil, next.err
	}
	resp := *next.resp
	resp.Message = resp.Message.Clone()
	return &resp, nil
}

// Requests returns the recorded requests.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Pending returns the number of unused scripted replies.
func (m *MockProvider) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

// Info implements Provider.
func (m *MockProvider) Info() Info { return m.info }
