package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/tutor/internal/models"
)

func TestQuestionCache_evictsLeastRecentlyUsed(t *testing.T) {
	c := newQuestionCache(2)
	if v, ok := c.get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.put("a", []float32{1, 2, 3})
	c.put("b", []float32{4, 5})
	if _, ok := c.get("a"); !ok {
		t.Fatal("expected hit for a")
	}
	c.put("c", []float32{6}) // evicts b, a was used more recently
	if _, ok := c.get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if v, ok := c.get("a"); !ok || v[0] != 1 {
		t.Errorf("a = %v, %v", v, ok)
	}
	st := c.stats()
	if st.Entries != 2 || st.Capacity != 2 || st.Hits != 2 || st.Misses != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestQuestionCache_putReplaces(t *testing.T) {
	c := newQuestionCache(2)
	c.put("a", []float32{1})
	c.put("a", []float32{2})
	if v, _ := c.get("a"); v[0] != 2 {
		t.Errorf("a = %v", v)
	}
	if c.stats().Entries != 1 {
		t.Errorf("entries = %d", c.stats().Entries)
	}
}

type countingEmbedder struct {
	*HashEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, image *models.Image) ([]float32, error) {
	c.calls++
	return c.HashEmbedder.Embed(ctx, text, image)
}

func TestCachedEmbedder(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	e := NewCachedEmbedder(inner, 4)
	ctx := context.Background()
	for _, q := range []string{"same question", "  same   question ", "same question"} {
		if _, err := e.Embed(ctx, q, nil); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1 (whitespace variants share a key)", inner.calls)
	}
	if e.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d", e.Dimensions())
	}
	st := e.(*CachedEmbedder).Stats()
	if st.Hits != 2 || st.Misses != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCachedEmbedder_rejectsBeforeLookup(t *testing.T) {
	e := NewCachedEmbedder(NewHashEmbedder(8), 4).(*CachedEmbedder)
	if _, err := e.Embed(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected error for blank text")
	}
	if st := e.Stats(); st.Misses != 0 {
		t.Errorf("blank text should not reach the cache: %+v", st)
	}
}

func TestNewCachedEmbedder_zeroCapacity(t *testing.T) {
	inner := NewHashEmbedder(8)
	if NewCachedEmbedder(inner, 0) != Embedder(inner) {
		t.Error("zero capacity should return the inner embedder")
	}
}
