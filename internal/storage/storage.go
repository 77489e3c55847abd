// Package storage persists chunk records for the knowledge base.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/tutor/internal/models"
)

// ErrChunkNotFound is returned by GetChunk when no record has the given id.
var ErrChunkNotFound = errors.New("chunk not found")

// ChunkStore maps chunk ids to chunk records. It is written by ingestion and
// read-only while serving queries.
type ChunkStore interface {
	// GetChunks looks up many ids at once. Missing ids are absent from the result.
	GetChunks(ctx context.Context, ids []string) (map[string]*models.ChunkRecord, error)
	GetChunk(ctx context.Context, id string) (*models.ChunkRecord, error)
	// ListChunks returns records ordered by id. A negative limit means no limit.
	ListChunks(ctx context.Context, offset, limit int) ([]*models.ChunkRecord, error)
	BatchUpsertChunks(ctx context.Context, chunks []*models.ChunkRecord) error
	DeleteAllChunks(ctx context.Context) error
	CountChunks(ctx context.Context) (int64, error)
	Close() error
}
