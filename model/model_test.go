package model

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/teamwork/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponse_Decode(t *testing.T) {
	var out struct {
		Task *string `json:"task"`
	}

	resp := &Response{Message: core.Response(`{"task":"write"}`)}
	require.NoError(t, resp.Decode(&out))
	require.NotNil(t, out.Task)
	assert.Equal(t, "write", *out.Task)

	fenced := &Response{Message: core.Response("```json\n{\"task\":null}\n```")}
	require.NoError(t, fenced.Decode(&out))
	assert.Nil(t, out.Task)
}

func TestResponse_DecodeFailures(t *testing.T) {
	var out map[string]any
	assert.ErrorIs(t, (&Response{Message: core.Response("")}).Decode(&out), core.ErrUnparseableResponse)
	assert.ErrorIs(t, (&Response{Message: core.Response("not json")}).Decode(&out), core.ErrUnparseableResponse)
}

func TestMockProvider(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockProvider().
		AddText("hello").
		AddToolCalls(core.ToolCall{ID: "c1", Name: "t"}).
		AddError(boom)

	ctx := context.Background()

	r1, err := m.Completions(ctx, Request{Messages: []core.Message{core.Request("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "hello", r1.Message.Content)
	assert.False(t, r1.HasToolCalls())

	r2, err := m.Completions(ctx, Request{})
	require.NoError(t, err)
	assert.True(t, r2.HasToolCalls())

	_, err = m.Completions(ctx, Request{})
	assert.ErrorIs(t, err, boom)

	_, err = m.Completions(ctx, Request{})
	assert.Error(t, err)

	assert.Len(t, m.Requests(), 4)
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, "mock", m.Info().Provider)
}

func TestMockProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMockProvider().AddText("never")
	_, err := m.Completions(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, m.Pending())
}
