package vector

import (
	"fmt"

	"github.com/hyperjump/tutor/internal/config"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory exact search. Good for course-sized corpora.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeFAISS uses FAISS flat indexes. Requires the FAISS library and build tag -tags=faiss.
	IndexTypeFAISS IndexType = "faiss"
	// IndexTypeQdrant stores vectors in a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// NewVectorIndex creates an empty index of the configured type and metric.
func NewVectorIndex(cfg *config.VectorConfig, dimensions int) (Index, error) {
	metric, err := ParseMetric(cfg.Metric)
	if err != nil {
		return nil, err
	}
	switch IndexType(cfg.IndexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions, metric)
	case IndexTypeFAISS:
		return NewFAISSIndex(dimensions, metric)
	case IndexTypeQdrant:
		return NewQdrantIndex(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, dimensions, metric)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, faiss, qdrant)", cfg.IndexType)
	}
}

// OpenVectorIndex creates an index and loads it from path.
func OpenVectorIndex(cfg *config.VectorConfig, dimensions int, path string) (Index, error) {
	idx, err := NewVectorIndex(cfg, dimensions)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(path); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("load %s index: %w", idx.Type(), err)
	}
	return idx, nil
}

// IsFAISSAvailable returns true if FAISS support is compiled in.
func IsFAISSAvailable() bool {
	idx, err := NewFAISSIndex(1, MetricCosine)
	if err != nil {
		return false
	}
	_ = idx.Close()
	return true
}
