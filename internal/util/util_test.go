package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readArgs struct {
	Path   string `json:"path" description:"File to read"`
	Detail string `json:"detail,omitempty" enum:"low,high" default:"high"`
	Limit  *int   `json:"limit"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(readArgs{})

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"path"}, schema["required"])

	props := schema["properties"].(map[string]any)
	detail := props["detail"].(map[string]any)
	assert.Equal(t, []string{"low", "high"}, detail["enum"])
	assert.Equal(t, "high", detail["default"])
	assert.Equal(t, "integer", props["limit"].(map[string]any)["type"])
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(readArgs{})

	require.NoError(t, ValidateParameters(map[string]any{"path": "a.txt", "detail": "low"}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "path", verr.Field)

	assert.Error(t, ValidateParameters(map[string]any{"path": 1.0}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"path": "a", "detail": "medium"}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"path": "a", "limit": 1.5}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"path": "a", "limit": 3.0, "extra": true}, schema))
}

func TestValidateParameters_JSONDecodedSchema(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"task": map[string]any{"type": []any{"string", "null"}}},
		"required":   []any{"task"},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"task": nil}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"task": "x"}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"task": 2.0}, schema))
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
}

func TestApplyDefaults(t *testing.T) {
	got := ApplyDefaults(map[string]any{"path": "a"}, CreateSchema(readArgs{}))
	assert.Equal(t, "high", got["detail"])

	kept := ApplyDefaults(map[string]any{"detail": "low"}, CreateSchema(readArgs{}))
	assert.Equal(t, "low", kept["detail"])
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`Task: {{.description}} {{default "none" .knowledge}}`, map[string]any{"description": "x <y>"})
	require.NoError(t, err)
	assert.Equal(t, "Task: x <y> none", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestDedent(t *testing.T) {
	in := `
		You are a planner.
		  Rules:
		1. be brief
	`
	assert.Equal(t, "You are a planner.\n  Rules:\n1. be brief", Dedent(in))
}

func TestRenderTemplate_Join(t *testing.T) {
	out, err := RenderTemplate(`{{join ", " .names}}`, map[string]any{"names": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "a, b", out)
}
