package vector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/tutor/internal/config"
)

func TestNewVectorIndex_Memory(t *testing.T) {
	idx, err := NewVectorIndex(&config.VectorConfig{IndexType: "memory", Metric: "l2"}, 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(memory): %v", err)
	}
	defer idx.Close()
	if idx.Type() != "memory" || idx.Metric() != MetricL2 || idx.Dimensions() != 3 {
		t.Errorf("unexpected index: %s %s %d", idx.Type(), idx.Metric(), idx.Dimensions())
	}
}

func TestNewVectorIndex_errors(t *testing.T) {
	if _, err := NewVectorIndex(&config.VectorConfig{IndexType: "unknown"}, 3); err == nil {
		t.Error("expected error for unknown index type")
	}
	if _, err := NewVectorIndex(&config.VectorConfig{IndexType: "memory", Metric: "dot"}, 3); err == nil {
		t.Error("expected error for unknown metric")
	}
	if _, err := NewVectorIndex(&config.VectorConfig{IndexType: "memory"}, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
}

func TestOpenVectorIndex(t *testing.T) {
	cfg := &config.VectorConfig{IndexType: "memory", Metric: "cosine"}
	path := filepath.Join(t.TempDir(), "vectors.index")
	if _, err := OpenVectorIndex(cfg, 2, path); err == nil {
		t.Error("opening a missing index should fail")
	}

	idx, _ := NewVectorIndex(cfg, 2)
	_ = idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	opened, err := OpenVectorIndex(cfg, 2, path)
	if err != nil {
		t.Fatal(err)
	}
	if opened.Size() != 1 {
		t.Errorf("Size=%d", opened.Size())
	}
}

func TestIsFAISSAvailable(t *testing.T) {
	t.Logf("FAISS available: %v", IsFAISSAvailable())
}

func TestNewVectorIndex_FAISS(t *testing.T) {
	if !IsFAISSAvailable() {
		t.Skip("FAISS not available (build with -tags=faiss)")
	}
	idx, err := NewVectorIndex(&config.VectorConfig{IndexType: "faiss", Metric: "cosine"}, 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(faiss): %v", err)
	}
	defer idx.Close()
	if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}

func TestParseMetric(t *testing.T) {
	if m, err := ParseMetric(""); err != nil || m != MetricCosine {
		t.Errorf("empty metric: %v %v", m, err)
	}
	if _, err := ParseMetric("ip"); err == nil {
		t.Error("expected error")
	}
}

func TestQdrantIndex_distance(t *testing.T) {
	if d := newQdrantIndex(nil, "c", 3, MetricL2).distance().String(); d != "Euclid" {
		t.Errorf("l2 distance = %s", d)
	}
	if d := newQdrantIndex(nil, "c", 3, MetricCosine).distance().String(); d != "Cosine" {
		t.Errorf("cosine distance = %s", d)
	}
}
