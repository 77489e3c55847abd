// Package retrieval finds the knowledge-base chunks most similar to a question.
package retrieval

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/kb"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/vector"
)

// Retriever embeds a question and resolves its nearest neighbours to chunk records.
type Retriever struct {
	embedder     embedding.Embedder
	kb           *kb.Manager
	embedTimeout time.Duration
	logger       *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger used for data-integrity warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEmbedTimeout bounds each embedding call. Zero means no extra bound.
func WithEmbedTimeout(d time.Duration) Option {
	return func(r *Retriever) { r.embedTimeout = d }
}

// NewRetriever creates a retriever over the snapshots held by manager.
func NewRetriever(embedder embedding.Embedder, manager *kb.Manager, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, kb: manager, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most k chunks ordered by decreasing similarity, without duplicates.
// Index positions or chunk ids that cannot be resolved are dropped and logged.
func (r *Retriever) Retrieve(ctx context.Context, question string, image *models.Image, k int) (*models.RetrievedContext, error) {
	const op = "retrieve"
	if k <= 0 {
		return nil, apperr.New(apperr.InvalidInput, op, "k must be positive, got %d", k)
	}

	snap, release, err := r.kb.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	vec, err := r.embed(ctx, question, image)
	if err != nil {
		return nil, err
	}
	if len(vec) != snap.Index.Dimensions() {
		return nil, apperr.New(apperr.ModelUnavailable, op,
			"embedding has %d dimensions but the index expects %d", len(vec), snap.Index.Dimensions())
	}

	hits, err := snap.Index.Search(ctx, vec, k)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Wrap(apperr.Canceled, op, err)
		}
		return nil, apperr.Wrap(apperr.Internal, "vector search", err)
	}

	type resolved struct {
		hit vector.Hit
		id  string
	}
	matched := make([]resolved, 0, len(hits))
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		id, ok := snap.IDMap.Lookup(h.Position)
		if !ok {
			r.logger.Warn("Index position missing from id map",
				zap.Int("position", h.Position), zap.Uint64("kb_version", snap.Version))
			continue
		}
		if h.ChunkID != "" && h.ChunkID != id {
			r.logger.Warn("Index and id map disagree on chunk id",
				zap.Int("position", h.Position), zap.String("index_chunk_id", h.ChunkID),
				zap.String("id_map_chunk_id", id), zap.Uint64("kb_version", snap.Version))
			continue
		}
		matched = append(matched, resolved{hit: h, id: id})
		ids = append(ids, id)
	}

	records, err := snap.Store.GetChunks(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "chunk lookup", err)
	}

	out := &models.RetrievedContext{Chunks: make([]*models.RetrievedChunk, 0, len(matched))}
	seen := make(map[string]bool, len(matched))
	for _, m := range matched {
		if seen[m.id] {
			continue
		}
		rec, ok := records[m.id]
		if !ok {
			r.logger.Warn("Chunk id missing from chunk store",
				zap.String("chunk_id", m.id), zap.Int("position", m.hit.Position), zap.Uint64("kb_version", snap.Version))
			continue
		}
		seen[m.id] = true
		out.Chunks = append(out.Chunks, &models.RetrievedChunk{Chunk: rec, Score: m.hit.Score, Position: m.hit.Position})
	}
	return out, nil
}

func (r *Retriever) embed(parent context.Context, question string, image *models.Image) ([]float32, error) {
	ctx := parent
	if r.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.embedTimeout)
		defer cancel()
	}
	vec, err := r.embedder.Embed(ctx, question, image)
	if err != nil {
		if apperr.KindOf(err) == apperr.InvalidInput {
			return nil, err
		}
		if parent.Err() != nil {
			return nil, apperr.Wrap(apperr.Canceled, "embed question", parent.Err())
		}
		return nil, apperr.Wrap(apperr.ModelUnavailable, "embed question", err)
	}
	return vec, nil
}
