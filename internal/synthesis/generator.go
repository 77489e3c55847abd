// Package synthesis turns retrieved passages into a cited answer using a generative model.
package synthesis

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/models"
)

// Request is a single generation call.
type Request struct {
	System string
	Prompt string
	// Image, when set, is attached to the user turn.
	Image *models.Image
	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// Generator produces raw model text for a request.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
	Name() string
}

// NewGenerator builds the generator selected by cfg. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewGenerator(ctx context.Context, cfg *config.GenerationConfig) (Generator, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	switch cfg.Provider {
	case "openai":
		return NewOpenAIGenerator(apiKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "gemini":
		return NewGeminiGenerator(ctx, apiKey, cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", cfg.Provider)
	}
}
