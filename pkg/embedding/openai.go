package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = openai.SmallEmbedding3

// OpenAIProvider uses the go-openai SDK.
type OpenAIProvider struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// NewOpenAIProvider creates a provider. baseURL may be empty for the public API.
func NewOpenAIProvider(baseURL, apiKey, model string, dimensions int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	m := openai.EmbeddingModel(model)
	if model == "" {
		m = DefaultOpenAIModel
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(cfg),
		model:      m,
		dimensions: dimensions,
	}
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      p.model,
		Dimensions: p.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: no data returned")
	}
	return resp.Data[0].Embedding, nil
}
