package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/embedding"
	"github.com/hyperjump/tutor/internal/kb"
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/internal/storage"
	"github.com/hyperjump/tutor/internal/vector"
)

const dims = 256

var corpus = []*models.ChunkRecord{
	{ID: "docker_0", Text: "Run the docker container and map port 8000", SourceURL: "https://tds.example/docker", Title: "Docker"},
	{ID: "ga4_0", Text: "GA4 asks you to score sentiment with an LLM", SourceURL: "https://tds.example/ga4", Title: "GA4"},
	{ID: "pandas_0", Text: "Use pandas groupby to aggregate the dataframe", SourceURL: "https://tds.example/pandas", Title: "Pandas"},
	{ID: "ga4_1", Text: "GA4 deadline and submission portal for the LLM task", SourceURL: "https://tds.example/ga4", Title: "GA4"},
}

// newTestKB indexes indexed in order and stores stored in SQLite.
func newTestKB(t *testing.T, e embedding.Embedder, indexed, stored []*models.ChunkRecord) *kb.Manager {
	t.Helper()
	return newTestKBWithIndex(t, e, indexed, stored, func(idx *vector.MemoryIndex) vector.Index { return idx })
}

func newTestKBWithIndex(t *testing.T, e embedding.Embedder, indexed, stored []*models.ChunkRecord,
	wrap func(*vector.MemoryIndex) vector.Index) *kb.Manager {
	t.Helper()
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "kb.db"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.BatchUpsertChunks(ctx, stored); err != nil {
		t.Fatal(err)
	}
	idx, _ := vector.NewMemoryIndex(dims, vector.MetricCosine)
	ids := make([]string, len(indexed))
	texts := make([]string, len(indexed))
	for i, c := range indexed {
		ids[i] = c.ID
		texts[i] = c.Text
	}
	if len(texts) > 0 {
		vecs, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			t.Fatal(err)
		}
		if err := idx.Add(ctx, ids, vecs); err != nil {
			t.Fatal(err)
		}
	}
	idMap, err := vector.NewIDMap(ids)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := kb.NewSnapshot(store, wrap(idx), idMap)
	if err != nil {
		t.Fatal(err)
	}
	m := kb.NewManager(func(context.Context) (*kb.Snapshot, error) { return snap, nil })
	if err := m.Load(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestRetriever_Retrieve(t *testing.T) {
	e := embedding.NewHashEmbedder(dims)
	r := NewRetriever(e, newTestKB(t, e, corpus, corpus))

	rc, err := r.Retrieve(context.Background(), "When is the GA4 LLM deadline?", nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rc.Len())
	}
	for _, c := range rc.Chunks {
		if c.Chunk.SourceURL != "https://tds.example/ga4" {
			t.Errorf("unexpected chunk %s", c.Chunk.ID)
		}
	}
	if rc.Chunks[0].Score < rc.Chunks[1].Score {
		t.Error("results not ordered by score")
	}
}

func TestRetriever_properties(t *testing.T) {
	e := embedding.NewHashEmbedder(dims)
	r := NewRetriever(e, newTestKB(t, e, corpus, corpus))
	for k := 1; k <= 6; k++ {
		rc, err := r.Retrieve(context.Background(), "docker pandas GA4", nil, k)
		if err != nil {
			t.Fatal(err)
		}
		if rc.Len() > k {
			t.Errorf("k=%d: got %d chunks", k, rc.Len())
		}
		seen := map[string]bool{}
		for i, c := range rc.Chunks {
			if seen[c.Chunk.ID] {
				t.Errorf("k=%d: duplicate %s", k, c.Chunk.ID)
			}
			seen[c.Chunk.ID] = true
			if i > 0 && c.Score > rc.Chunks[i-1].Score {
				t.Errorf("k=%d: score increases at %d", k, i)
			}
		}
	}
}

func TestRetriever_dropsDrift(t *testing.T) {
	e := embedding.NewHashEmbedder(dims)
	stored := []*models.ChunkRecord{corpus[0], corpus[2]}
	r := NewRetriever(e, newTestKB(t, e, corpus, stored))

	rc, err := r.Retrieve(context.Background(), "GA4 LLM", nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Len() != 2 {
		t.Fatalf("Len() = %d, want only the stored chunks", rc.Len())
	}
	for _, c := range rc.Chunks {
		if c.Chunk.ID == "ga4_0" || c.Chunk.ID == "ga4_1" {
			t.Errorf("drifted chunk %s returned", c.Chunk.ID)
		}
	}
}

// labelledIndex reports a stored chunk id with every hit.
type labelledIndex struct {
	*vector.MemoryIndex
	labels []string
}

func (l labelledIndex) Search(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	hits, err := l.MemoryIndex.Search(ctx, query, k)
	for i := range hits {
		hits[i].ChunkID = l.labels[hits[i].Position]
	}
	return hits, err
}

func TestRetriever_dropsChunkIDMismatch(t *testing.T) {
	e := embedding.NewHashEmbedder(dims)
	// The index was rebuilt with the two GA4 chunks swapped; the id map was not.
	labels := []string{"docker_0", "ga4_1", "pandas_0", "ga4_0"}
	m := newTestKBWithIndex(t, e, corpus, corpus, func(idx *vector.MemoryIndex) vector.Index {
		return labelledIndex{MemoryIndex: idx, labels: labels}
	})

	rc, err := NewRetriever(e, m).Retrieve(context.Background(), "GA4 LLM deadline", nil, 4)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rc.Len())
	}
	for _, c := range rc.Chunks {
		if c.Chunk.ID == "ga4_0" || c.Chunk.ID == "ga4_1" {
			t.Errorf("mismatched chunk %s returned", c.Chunk.ID)
		}
	}
}

func TestRetriever_emptyIndex(t *testing.T) {
	e := embedding.NewHashEmbedder(dims)
	r := NewRetriever(e, newTestKB(t, e, nil, nil))
	rc, err := r.Retrieve(context.Background(), "anything", nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rc.Len() != 0 {
		t.Errorf("Len() = %d", rc.Len())
	}
}

type stubEmbedder struct {
	embedding.Embedder
	embed func(ctx context.Context) ([]float32, error)
}

func (s stubEmbedder) Embed(ctx context.Context, _ string, _ *models.Image) ([]float32, error) {
	return s.embed(ctx)
}

func TestRetriever_errors(t *testing.T) {
	e := embedding.NewHashEmbedder(dims)
	manager := newTestKB(t, e, corpus, corpus)
	ctx := context.Background()

	t.Run("k not positive", func(t *testing.T) {
		_, err := NewRetriever(e, manager).Retrieve(ctx, "q", nil, 0)
		if !apperr.Is(err, apperr.InvalidInput) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("empty question", func(t *testing.T) {
		_, err := NewRetriever(e, manager).Retrieve(ctx, "  ", nil, 3)
		if !apperr.Is(err, apperr.InvalidInput) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("not loaded", func(t *testing.T) {
		empty := kb.NewManager(func(context.Context) (*kb.Snapshot, error) { return nil, errors.New("x") })
		_, err := NewRetriever(e, empty).Retrieve(ctx, "q", nil, 3)
		if !apperr.Is(err, apperr.IndexUnavailable) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("embedder down", func(t *testing.T) {
		s := stubEmbedder{embed: func(context.Context) ([]float32, error) { return nil, errors.New("connection refused") }}
		_, err := NewRetriever(s, manager).Retrieve(ctx, "q", nil, 3)
		if !apperr.Is(err, apperr.ModelUnavailable) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("dimension mismatch", func(t *testing.T) {
		s := stubEmbedder{embed: func(context.Context) ([]float32, error) { return make([]float32, dims+1), nil }}
		_, err := NewRetriever(s, manager).Retrieve(ctx, "q", nil, 3)
		if !apperr.Is(err, apperr.ModelUnavailable) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("embed timeout", func(t *testing.T) {
		s := stubEmbedder{embed: func(ctx context.Context) ([]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		_, err := NewRetriever(s, manager, WithEmbedTimeout(10*time.Millisecond)).Retrieve(ctx, "q", nil, 3)
		if !apperr.Is(err, apperr.ModelUnavailable) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("caller canceled", func(t *testing.T) {
		s := stubEmbedder{embed: func(ctx context.Context) ([]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewRetriever(s, manager).Retrieve(cctx, "q", nil, 3)
		if !apperr.Is(err, apperr.Canceled) {
			t.Errorf("got %v", err)
		}
	})
	t.Run("caller deadline", func(t *testing.T) {
		s := stubEmbedder{embed: func(ctx context.Context) ([]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		dctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := NewRetriever(s, manager, WithEmbedTimeout(time.Minute)).Retrieve(dctx, "q", nil, 3)
		if !apperr.Is(err, apperr.Canceled) {
			t.Errorf("got %v", err)
		}
	})
}
