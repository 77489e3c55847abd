//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"unsafe"
)

// FAISSIndex is a flat FAISS index. Cosine indexes use IndexFlatIP over normalized
// vectors; l2 indexes use IndexFlatL2. FAISS labels are the build positions.
// Files written by Save are plain FAISS index files readable by other FAISS tools.
type FAISSIndex struct {
	index      *C.FaissIndex
	dimensions int
	metric     Metric
	mu         sync.RWMutex
}

// NewFAISSIndex creates an empty flat index for the given metric.
func NewFAISSIndex(dimensions int, metric Metric) (*FAISSIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if metric == "" {
		metric = MetricCosine
	}
	index, err := newFlatIndex(dimensions, metric)
	if err != nil {
		return nil, err
	}
	return &FAISSIndex{index: index, dimensions: dimensions, metric: metric}, nil
}

func newFlatIndex(dimensions int, metric Metric) (*C.FaissIndex, error) {
	var index *C.FaissIndex
	var ret C.int
	if metric == MetricL2 {
		ret = C.faiss_IndexFlatL2_new_with((**C.FaissIndexFlatL2)(unsafe.Pointer(&index)), C.idx_t(dimensions))
	} else {
		ret = C.faiss_IndexFlatIP_new_with((**C.FaissIndexFlatIP)(unsafe.Pointer(&index)), C.idx_t(dimensions))
	}
	if ret != 0 {
		return nil, fmt.Errorf("failed to create FAISS index: %s", faissLastError())
	}
	return index, nil
}

// faissLastError returns the last FAISS error message.
func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add appends vectors; chunk ids are kept in the separate id map.
func (f *FAISSIndex) Add(ctx context.Context, chunkIDs []string, vectors [][]float32) error {
	if err := checkAddArgs(chunkIDs, vectors, f.dimensions); err != nil {
		return err
	}
	if len(vectors) == 0 {
		return nil
	}

	flat := make([]float32, len(vectors)*f.dimensions)
	for i, vec := range vectors {
		copy(flat[i*f.dimensions:(i+1)*f.dimensions], vec)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if ret := C.faiss_Index_add(f.index, C.idx_t(len(vectors)), (*C.float)(unsafe.Pointer(&flat[0]))); ret != 0 {
		return fmt.Errorf("failed to add vectors to FAISS index: %s", faissLastError())
	}
	return nil
}

// Search returns the top-k hits. L2 distances from FAISS are squared and are
// converted to negative Euclidean distance.
func (f *FAISSIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if err := checkSearchArgs(query, k, f.dimensions); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(f.index))
	if ntotal == 0 {
		return []Hit{}, nil
	}
	if k > ntotal {
		k = ntotal
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		f.index,
		1,
		(*C.float)(unsafe.Pointer(&query[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	hits := make([]Hit, 0, k)
	for i := 0; i < k; i++ {
		if labels[i] < 0 {
			continue
		}
		s := float64(distances[i])
		if f.metric == MetricL2 {
			s = -math.Sqrt(math.Max(s, 0))
		}
		hits = append(hits, Hit{Position: int(labels[i]), Score: s})
	}
	sortHits(hits)
	return hits, nil
}

// Reset replaces the index with an empty one.
func (f *FAISSIndex) Reset(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	index, err := newFlatIndex(f.dimensions, f.metric)
	if err != nil {
		return err
	}
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = index
	return nil
}

// Save writes the native FAISS index file to path.
func (f *FAISSIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))
	if ret := C.faiss_write_index_fname(f.index, cPath); ret != 0 {
		return fmt.Errorf("failed to save FAISS index: %s", faissLastError())
	}
	return nil
}

// Load reads a FAISS index file. Its dimension and metric must match this index.
func (f *FAISSIndex) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var loaded *C.FaissIndex
	if ret := C.faiss_read_index_fname(cPath, 0, &loaded); ret != 0 {
		return fmt.Errorf("failed to load FAISS index: %s", faissLastError())
	}

	if d := int(C.faiss_Index_d(loaded)); d != f.dimensions {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", d, f.dimensions)
	}
	fileMetric := MetricCosine
	if C.faiss_Index_metric_type(loaded) == C.METRIC_L2 {
		fileMetric = MetricL2
	}
	if fileMetric != f.metric {
		C.faiss_Index_free(loaded)
		return fmt.Errorf("metric mismatch: file has %s, index expects %s", fileMetric, f.metric)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
	}
	f.index = loaded
	return nil
}

// Size returns the number of vectors in the index.
func (f *FAISSIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.index == nil {
		return 0
	}
	return int(C.faiss_Index_ntotal(f.index))
}

// Dimensions returns the vector dimension.
func (f *FAISSIndex) Dimensions() int { return f.dimensions }

// Metric returns the similarity metric.
func (f *FAISSIndex) Metric() Metric { return f.metric }

// Close frees the FAISS index resources.
func (f *FAISSIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.index != nil {
		C.faiss_Index_free(f.index)
		f.index = nil
	}
	return nil
}

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
