package embedding

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

// OpenAIEmbedder uses an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder. baseURL may point at any OpenAI-compatible proxy.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, apperr.New(apperr.ModelUnavailable, "openai embedder", "API key is not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed returns the normalized embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, image *models.Image) ([]float32, error) {
	if _, err := prepare("openai embed", text, image); err != nil {
		return nil, err
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds all texts in one request and returns them in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	texts, err := prepareBatch("openai embed", texts)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ModelUnavailable, "openai embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.New(apperr.ModelUnavailable, "openai embed",
			"got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, apperr.New(apperr.ModelUnavailable, "openai embed", "embedding index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			vec[i] = float32(d.Embedding[i])
		}
		if out[d.Index], err = finalize("openai embed", vec, e.dimensions); err != nil {
			return nil, err
		}
	}
	for i := range out {
		if out[i] == nil {
			return nil, apperr.New(apperr.ModelUnavailable, "openai embed", "missing embedding for input %d", i)
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
