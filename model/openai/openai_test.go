package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages(t *testing.T) {
	msgs, err := buildMessages([]core.Message{
		core.System("be brief"),
		core.Request("hi"),
		core.ToolCallRequest(core.ToolCall{ID: "c1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`)}),
		core.ToolResult("c1", "found"),
		core.Response("done"),
		{Role: core.RoleUser, Content: "what is this?", Parts: []core.Part{core.ImagePart{URL: "https://example.com/a.png", Detail: "low"}}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 6)

	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "lookup", msgs[2].OfAssistant.ToolCalls[0].Function.Name)
	assert.Equal(t, `{"q":"x"}`, msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfAssistant)
	require.NotNil(t, msgs[5].OfUser)
	assert.Len(t, msgs[5].OfUser.Content.OfArrayOfContentParts, 2)
}

func TestBuildMessages_UnknownRole(t *testing.T) {
	_, err := buildMessages([]core.Message{{Role: "narrator", Content: "x"}})
	assert.Error(t, err)
}

func TestBuildParams(t *testing.T) {
	p := NewProviderFromClient(nil, func(o *Options) { o.Model = "gpt-test" })

	params, err := p.buildParams(model.Request{
		Messages:       []core.Message{core.Request("hi")},
		Tools:          []model.ToolDefinition{{Name: "lookup", Description: "Look up", Parameters: map[string]any{"type": "object"}}},
		ResponseFormat: &model.ResponseFormat{Name: "task_result", Schema: map[string]any{"type": "object"}},
		Temperature:    model.Float(0.1),
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-test", params.Model)
	assert.Equal(t, 0.1, params.Temperature.Value)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "lookup", params.Tools[0].Function.Name)
	require.NotNil(t, params.ResponseFormat.OfJSONSchema)
	assert.Equal(t, "task_result", params.ResponseFormat.OfJSONSchema.JSONSchema.Name)
}

func TestInfo(t *testing.T) {
	p := NewProviderFromClient(nil)
	assert.Equal(t, "openai", p.Info().Provider)
	assert.True(t, p.Info().SupportsTools)
}

func TestEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.Equal(t, []any{"a", "b"}, body["input"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p := NewProvider(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})

	vecs, err := p.NewEmbedder("").Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 0}, {0, 1}}, vecs)
}
