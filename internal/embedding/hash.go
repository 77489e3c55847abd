package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/tutor/internal/models"
)

// HashEmbedder is a deterministic bag-of-words embedder using feature hashing.
// It needs no model files, so it serves tests and offline development; texts that
// share words land close together.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed term vector of text.
func (e *HashEmbedder) Embed(ctx context.Context, text string, image *models.Image) ([]float32, error) {
	text, err := prepare("hash embed", text, image)
	if err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	for _, tok := range hashTokens(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	// Keep texts without word characters off the zero vector.
	vec[0] += 1e-3
	return finalize("hash embed", vec, e.dimensions)
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, func(ctx context.Context, s string) ([]float32, error) {
		return e.Embed(ctx, s, nil)
	})
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}

func hashTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
