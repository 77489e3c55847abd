// Package embedding maps question text into the vector space of the knowledge base.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/pkg/utils"
)

// Embedder produces unit-length vectors. The same model must be used at build time and at query time.
//
// All providers shipped here are text-only: an attached image is validated by the caller
// but does not contribute to the vector.
type Embedder interface {
	Embed(ctx context.Context, text string, image *models.Image) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// prepare collapses whitespace in text and validates the optional image.
func prepare(op, text string, image *models.Image) (string, error) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return "", apperr.New(apperr.InvalidInput, op, "text is empty")
	}
	if image != nil {
		if err := image.Validate(); err != nil {
			return "", err
		}
	}
	return text, nil
}

func prepareBatch(op string, texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, t := range texts {
		p, err := prepare(op, t, nil)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// finalize checks a raw model output against the expected dimension and normalizes it in place.
func finalize(op string, vec []float32, dims int) ([]float32, error) {
	if len(vec) != dims {
		return nil, apperr.New(apperr.ModelUnavailable, op, "model returned %d dimensions, expected %d", len(vec), dims)
	}
	if !utils.AllFinite(vec) {
		return nil, apperr.New(apperr.ModelUnavailable, op, "model returned non-finite values")
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

// embedEach runs embed for every text in order, stopping at the first error.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, apperr.Wrap(apperr.Canceled, "embed batch", err)
		}
		vec, err := embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
