package embedding

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
)

// OllamaEmbedder calls a local Ollama server's embed endpoint.
type OllamaEmbedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// NewOllamaEmbedder connects to baseURL, or to OLLAMA_HOST when baseURL is empty.
func NewOllamaEmbedder(baseURL, model string, dimensions int) (*OllamaEmbedder, error) {
	var client *api.Client
	if baseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, apperr.Wrap(apperr.ModelUnavailable, "ollama client", err)
		}
		client = c
	} else {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, apperr.Wrap(apperr.ModelUnavailable, "ollama client", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	}
	return &OllamaEmbedder{client: client, model: model, dimensions: dimensions}, nil
}

// Embed returns the normalized embedding for text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string, image *models.Image) ([]float32, error) {
	if _, err := prepare("ollama embed", text, image); err != nil {
		return nil, err
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in a single request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	texts, err := prepareBatch("ollama embed", texts)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, apperr.Wrap(apperr.ModelUnavailable, "ollama embed", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, apperr.New(apperr.ModelUnavailable, "ollama embed",
			"got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, raw := range resp.Embeddings {
		vec := make([]float32, len(raw))
		copy(vec, raw)
		if out[i], err = finalize("ollama embed", vec, e.dimensions); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client is shared.
func (e *OllamaEmbedder) Close() error {
	return nil
}
