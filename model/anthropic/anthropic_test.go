package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_GroupsToolResults(t *testing.T) {
	msgs, err := buildMessages([]core.Message{
		core.System("ignored here"),
		core.Request("hi"),
		core.ToolCallRequest(
			core.ToolCall{ID: "c1", Name: "a", Arguments: json.RawMessage(`{"x":1}`)},
			core.ToolCall{ID: "c2", Name: "b"},
		),
		core.ToolResult("c1", "one"),
		core.ToolResult("c2", "two"),
		core.Response("done"),
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, "user", string(msgs[2].Role))
	assert.Len(t, msgs[2].Content, 2)
	assert.Equal(t, "assistant", string(msgs[3].Role))
}

func TestBuildMessages_BadArguments(t *testing.T) {
	_, err := buildMessages([]core.Message{
		core.ToolCallRequest(core.ToolCall{ID: "c1", Name: "a", Arguments: json.RawMessage(`{`)}),
	})
	assert.Error(t, err)
}

func TestSystemBlocks_WithResponseFormat(t *testing.T) {
	blocks, err := systemBlocks(model.Request{
		Messages:       []core.Message{core.System("you plan")},
		ResponseFormat: &model.ResponseFormat{Name: "next_task", Schema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "you plan", blocks[0].Text)
	assert.Contains(t, blocks[1].Text, "next_task")
	assert.Contains(t, blocks[1].Text, `{"type":"object"}`)
}

func TestUserBlocks_Images(t *testing.T) {
	blocks := userBlocks(core.Message{
		Role:    core.RoleUser,
		Content: "read this",
		Parts: []core.Part{
			core.ImagePart{URL: "data:image/png;base64,AAAA"},
			core.ImagePart{URL: "https://example.com/a.jpg"},
		},
	})
	require.Len(t, blocks, 3)
	require.NotNil(t, blocks[1].OfImage)
	require.NotNil(t, blocks[1].OfImage.Source.OfBase64)
	assert.Equal(t, "AAAA", blocks[1].OfImage.Source.OfBase64.Data)
	require.NotNil(t, blocks[2].OfImage.Source.OfURL)
	assert.Equal(t, "https://example.com/a.jpg", blocks[2].OfImage.Source.OfURL.URL)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Name:        "lookup",
		Description: "Look things up",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"q": map[string]any{"type": "string"}},
			"required":   []any{"q"},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "lookup", tools[0].OfTool.Name)
	assert.Equal(t, []string{"q"}, tools[0].OfTool.InputSchema.Required)
}

func TestInfo(t *testing.T) {
	p := NewProviderFromClient(nil)
	assert.Equal(t, "anthropic", p.Info().Provider)
}
