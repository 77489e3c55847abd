package embedding

import (
	"fmt"
	"os"

	"github.com/hyperjump/tutor/internal/config"
)

// New builds the embedder selected by cfg, wrapped in a query cache.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Provider {
	case "onnx":
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.VocabPath, cfg.Dimensions, cfg.MaxTokens)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(os.Getenv(cfg.APIKeyEnv), cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "hash":
		e = NewHashEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewCachedEmbedder(e, cfg.CacheSize), nil
}
