// Package vector provides the nearest-neighbour index over chunk embeddings.
package vector

import (
	"context"
	"fmt"
	"sort"
)

// Metric is the similarity measure an index was built with.
type Metric string

const (
	// MetricCosine scores by cosine similarity; higher is closer.
	MetricCosine Metric = "cosine"
	// MetricL2 scores by negative Euclidean distance so that higher is still closer.
	MetricL2 Metric = "l2"
)

// ParseMetric validates a configured metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, "":
		return MetricCosine, nil
	case MetricL2:
		return MetricL2, nil
	default:
		return "", fmt.Errorf("unknown metric: %s (supported: cosine, l2)", s)
	}
}

// Hit is one search result: the position of a vector in build order and its score.
// ChunkID is set by backends that store the chunk id with each vector.
type Hit struct {
	Position int
	Score    float64
	ChunkID  string
}

// Index is a vector index built offline and searched read-only at query time.
// Positions are assigned in Add order starting at zero.
type Index interface {
	// Add appends vectors; chunkIDs label them for backends that store payloads.
	Add(ctx context.Context, chunkIDs []string, vectors [][]float32) error
	// Search returns at most k hits by descending score, ties by ascending position.
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	// Reset drops all vectors.
	Reset(ctx context.Context) error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Metric() Metric
	Type() string
	Close() error
}

// sortHits orders hits by descending score, then ascending position.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
}

func checkSearchArgs(query []float32, k, dims int) error {
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) != dims {
		return fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), dims)
	}
	return nil
}

func checkAddArgs(chunkIDs []string, vectors [][]float32, dims int) error {
	if len(chunkIDs) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), dims)
		}
	}
	return nil
}
