package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/storage"
)

// ItemID is a source item id. Forum exports use numbers, course exports use slugs.
type ItemID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ItemID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ItemID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("item id must be a string or number: %w", err)
	}
	*id = ItemID(n.String())
	return nil
}

// SourceItem is one page of course notes ({id, url, title, text}) or one forum post
// ({id, url, title|topic_title, raw}).
type SourceItem struct {
	ID         ItemID `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	TopicTitle string `json:"topic_title"`
	Text       string `json:"text"`
	Raw        string `json:"raw"`
}

// Body returns the text to chunk: text for course pages, raw for forum posts.
func (s *SourceItem) Body() string {
	if s.Text != "" {
		return s.Text
	}
	return s.Raw
}

// DisplayTitle returns the title, falling back to the forum topic title.
func (s *SourceItem) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return strings.TrimSpace(s.TopicTitle)
}

// LoadItems reads a JSON array of source items from path.
func LoadItems(path string) ([]*SourceItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var items []*SourceItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return items, nil
}

// IngestStats summarizes one ingested source file.
type IngestStats struct {
	Items   int
	Skipped int
	Chunks  int
}

// Ingester splits source items and writes them to the chunk store.
type Ingester struct {
	store   storage.ChunkStore
	chunker *Chunker
	logger  *zap.Logger
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for per-file progress.
func WithLogger(l *zap.Logger) IngesterOption {
	return func(in *Ingester) {
		if l != nil {
			in.logger = l
		}
	}
}

// NewIngester creates an ingester writing to store.
func NewIngester(store storage.ChunkStore, chunker *Chunker, opts ...IngesterOption) *Ingester {
	in := &Ingester{store: store, chunker: chunker, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// IngestFile loads path and ingests its items as kind.
func (in *Ingester) IngestFile(ctx context.Context, path, kind string) (IngestStats, error) {
	items, err := LoadItems(path)
	if err != nil {
		return IngestStats{}, err
	}
	stats, err := in.Ingest(ctx, items, kind)
	if err != nil {
		return stats, fmt.Errorf("ingest %s: %w", path, err)
	}
	in.logger.Info("Ingested source file",
		zap.String("path", path),
		zap.String("kind", kind),
		zap.Int("items", stats.Items),
		zap.Int("skipped", stats.Skipped),
		zap.Int("chunks", stats.Chunks))
	return stats, nil
}

// Ingest chunks items and writes all chunks in one transaction. Items without an id or
// with a blank body are skipped.
func (in *Ingester) Ingest(ctx context.Context, items []*SourceItem, kind string) (IngestStats, error) {
	var (
		stats IngestStats
		all   []*models.ChunkRecord
	)
	for _, item := range items {
		stats.Items++
		if item == nil || item.ID == "" {
			stats.Skipped++
			continue
		}
		chunks, err := in.chunker.Chunk(item, kind)
		if err != nil {
			return stats, err
		}
		if len(chunks) == 0 {
			stats.Skipped++
			continue
		}
		all = append(all, chunks...)
	}
	if len(all) == 0 {
		return stats, nil
	}
	if err := in.checkCollisions(ctx, all, kind); err != nil {
		return stats, err
	}
	if err := in.store.BatchUpsertChunks(ctx, all); err != nil {
		return stats, fmt.Errorf("failed to store chunks: %w", err)
	}
	stats.Chunks = len(all)
	return stats, nil
}

// checkCollisions rejects chunks whose ids already belong to a stored chunk of another
// kind. Course slugs and forum post ids share one id space; within a kind the later item
// replaces the earlier one.
func (in *Ingester) checkCollisions(ctx context.Context, chunks []*models.ChunkRecord, kind string) error {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	existing, err := in.store.GetChunks(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check existing chunks: %w", err)
	}
	for _, id := range ids {
		if prev, ok := existing[id]; ok && prev.Kind != kind {
			return fmt.Errorf("chunk id %s from %s items collides with an existing %s chunk", id, kind, prev.Kind)
		}
	}
	return nil
}
