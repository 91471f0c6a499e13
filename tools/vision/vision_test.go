package vision

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVision_Success(t *testing.T) {
	p := model.NewMockProvider().AddJSON(map[string]any{
		"response": map[string]any{"type": "success", "text": "Dune; Emma"},
	})

	out, err := New().Execute(context.Background(), map[string]any{
		"imagePathUrl": "https://example.com/shelf.jpg",
		"analysis":     "List the books",
	}, tool.Context{Provider: p})
	require.NoError(t, err)
	assert.Equal(t, "Dune; Emma", out)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "vision_request", reqs[0].ResponseFormat.Name)
	require.Len(t, reqs[0].Messages, 1)
	parts := reqs[0].Messages[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, core.TextPart{Text: "List the books. Use your built-in OCR capabilities."}, parts[0])
	assert.Equal(t, core.ImagePart{URL: "https://example.com/shelf.jpg", Detail: "high"}, parts[1])
}

func TestVision_Failure(t *testing.T) {
	p := model.NewMockProvider().AddJSON(map[string]any{
		"response": map[string]any{"type": "failure", "error": "blurry"},
	})

	_, err := New().Execute(context.Background(), map[string]any{
		"imagePathUrl": "https://example.com/shelf.jpg",
		"analysis":     "List the books",
		"detail":       "low",
	}, tool.Context{Provider: p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blurry")
}

func TestVision_InvalidDetail(t *testing.T) {
	_, err := New().Execute(context.Background(), map[string]any{
		"imagePathUrl": "x.png",
		"analysis":     "a",
		"detail":       "medium",
	}, tool.Context{Provider: model.NewMockProvider()})

	var toolErr *tool.Error
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestImageURL_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	url, err := imageURL(path)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,YWJj", url)

	_, err = imageURL(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.Error(t, err)
}
