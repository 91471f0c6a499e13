package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
)

// DefaultEmbeddingModel is used when no model is given to NewEmbedder.
const DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// Embedder turns texts into vectors with the Embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an embedder sharing the provider's client.
func (p *Provider) NewEmbedder(model string) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{client: p.client, model: model}
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai api error: embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai api error: missing embedding %d", i)
		}
	}

	return out, nil
}
