//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"errors"
)

var errNoFAISS = errors.New("FAISS not available: build with -tags=faiss and install FAISS library")

// FAISSIndex is a stub that returns an error when FAISS is not available.
// Build with -tags=faiss to enable FAISS support.
type FAISSIndex struct{}

// NewFAISSIndex returns an error because FAISS is not available.
func NewFAISSIndex(dimensions int, metric Metric) (*FAISSIndex, error) {
	return nil, errNoFAISS
}

func (f *FAISSIndex) Add(context.Context, []string, [][]float32) error { return errNoFAISS }

func (f *FAISSIndex) Search(context.Context, []float32, int) ([]Hit, error) { return nil, errNoFAISS }

func (f *FAISSIndex) Reset(context.Context) error { return errNoFAISS }

func (f *FAISSIndex) Save(string) error { return errNoFAISS }

func (f *FAISSIndex) Load(string) error { return errNoFAISS }

func (f *FAISSIndex) Size() int { return 0 }

func (f *FAISSIndex) Dimensions() int { return 0 }

func (f *FAISSIndex) Metric() Metric { return "" }

func (f *FAISSIndex) Close() error { return nil }

// Type returns the index type identifier.
func (f *FAISSIndex) Type() string {
	return string(IndexTypeFAISS)
}
