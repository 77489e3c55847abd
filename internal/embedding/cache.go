package embedding

import (
	"container/list"
	"context"
	"sync"

	"github.com/hyperjump/tutor/internal/models"
)

// CacheStats reports query cache effectiveness.
type CacheStats struct {
	Entries  int   `json:"entries"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// questionCache is an LRU of question vectors keyed by normalized text.
type questionCache struct {
	mu       sync.Mutex
	capacity int
	byText   map[string]*list.Element
	order    *list.List // front = most recently used
	hits     int64
	misses   int64
}

type cachedVector struct {
	text string
	vec  []float32
}

func newQuestionCache(capacity int) *questionCache {
	return &questionCache{
		capacity: capacity,
		byText:   make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (c *questionCache) get(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.byText[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cachedVector).vec, true
}

func (c *questionCache) put(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.byText[text]; ok {
		elem.Value.(*cachedVector).vec = vec
		c.order.MoveToFront(elem)
		return
	}
	c.byText[text] = c.order.PushFront(&cachedVector{text: text, vec: vec})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.byText, oldest.Value.(*cachedVector).text)
	}
}

func (c *questionCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.order.Len(), Capacity: c.capacity, Hits: c.hits, Misses: c.misses}
}

// CachedEmbedder memoizes question embeddings in front of another embedder.
// Batch calls from index builds bypass the cache. Callers must not modify returned vectors.
type CachedEmbedder struct {
	Embedder
	cache *questionCache
}

// NewCachedEmbedder wraps inner with an LRU cache of the given capacity.
// A non-positive capacity returns inner unchanged.
func NewCachedEmbedder(inner Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return inner
	}
	return &CachedEmbedder{Embedder: inner, cache: newQuestionCache(capacity)}
}

// Embed returns the cached vector for the normalized text or computes and stores it.
// The image does not take part in the key because no embedder uses it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string, image *models.Image) ([]float32, error) {
	text, err := prepare("embed", text, image)
	if err != nil {
		return nil, err
	}
	if v, ok := c.cache.get(text); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text, image)
	if err != nil {
		return nil, err
	}
	c.cache.put(text, v)
	return v, nil
}

// Stats returns the cache counters.
func (c *CachedEmbedder) Stats() CacheStats {
	return c.cache.stats()
}
