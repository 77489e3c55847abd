package indexer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/storage"
	"github.com/hyperjump/tutor/internal/vector"
)

// BuildStats summarizes an index build.
type BuildStats struct {
	Chunks   int
	Skipped  int
	Vectors  int
	Duration time.Duration
}

// Builder embeds every stored chunk and writes the vector index and its id map.
type Builder struct {
	store     storage.ChunkStore
	embedder  embedding.Embedder
	index     vector.Index
	batchSize int
	progress  io.Writer
	logger    *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuildLogger sets the builder's logger.
func WithBuildLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBatchSize sets how many chunks are embedded per call.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithProgress renders a progress bar to w while embedding.
func WithProgress(w io.Writer) BuilderOption {
	return func(b *Builder) { b.progress = w }
}

// NewBuilder creates a builder that fills index from store using embedder.
func NewBuilder(store storage.ChunkStore, embedder embedding.Embedder, index vector.Index, opts ...BuilderOption) *Builder {
	b := &Builder{store: store, embedder: embedder, index: index, batchSize: 8, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build embeds all chunks in id order, replaces the index contents and saves the index to
// indexPath and the id map to idMapPath. Any failed batch aborts the build before anything
// is written. Both files are written under temporary names and then renamed into place,
// so a loader never sees a partly written file.
func (b *Builder) Build(ctx context.Context, indexPath, idMapPath string) (BuildStats, error) {
	start := time.Now()
	var stats BuildStats
	if b.embedder.Dimensions() != b.index.Dimensions() {
		return stats, fmt.Errorf("embedder produces %d dimensions but the index expects %d",
			b.embedder.Dimensions(), b.index.Dimensions())
	}

	chunks, err := b.store.ListChunks(ctx, 0, -1)
	if err != nil {
		return stats, fmt.Errorf("failed to list chunks: %w", err)
	}
	stats.Chunks = len(chunks)

	ids := make([]string, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			b.logger.Warn("Skipping chunk with empty text", zap.String("chunk_id", c.ID))
			stats.Skipped++
			continue
		}
		ids = append(ids, c.ID)
		texts = append(texts, c.Text)
	}

	bar := b.newBar(len(texts))
	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += b.batchSize {
		end := min(i+b.batchSize, len(texts))
		vecs, err := b.embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return stats, fmt.Errorf("embed batch %d (chunks %s..%s): %w", i/b.batchSize, ids[i], ids[end-1], err)
		}
		vectors = append(vectors, vecs...)
		if bar != nil {
			_ = bar.Add(end - i)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}

	idMap, err := vector.NewIDMap(ids)
	if err != nil {
		return stats, err
	}
	if err := b.index.Reset(ctx); err != nil {
		return stats, fmt.Errorf("failed to reset index: %w", err)
	}
	if len(vectors) > 0 {
		if err := b.index.Add(ctx, ids, vectors); err != nil {
			return stats, fmt.Errorf("failed to index vectors: %w", err)
		}
	}
	if err := b.publish(idMap, indexPath, idMapPath); err != nil {
		return stats, err
	}

	stats.Vectors = b.index.Size()
	stats.Duration = time.Since(start)
	b.logger.Info("Built vector index",
		zap.String("type", b.index.Type()),
		zap.Int("vectors", stats.Vectors),
		zap.Int("skipped", stats.Skipped),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func (b *Builder) publish(idMap *vector.IDMap, indexPath, idMapPath string) error {
	tmpIndex := indexPath + ".tmp"
	tmpIDMap := idMapPath + ".tmp"
	defer os.Remove(tmpIndex)
	defer os.Remove(tmpIDMap)

	if err := idMap.Save(tmpIDMap); err != nil {
		return fmt.Errorf("failed to save id map: %w", err)
	}
	if err := b.index.Save(tmpIndex); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	// Remote indexes publish on Save and write nothing locally.
	if _, err := os.Stat(tmpIndex); err == nil {
		if err := os.Rename(tmpIndex, indexPath); err != nil {
			return fmt.Errorf("failed to publish index: %w", err)
		}
	}
	if err := os.Rename(tmpIDMap, idMapPath); err != nil {
		return fmt.Errorf("failed to publish id map: %w", err)
	}
	return nil
}

func (b *Builder) newBar(total int) *progressbar.ProgressBar {
	if b.progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription("Embedding"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(b.progress) }),
	)
}
