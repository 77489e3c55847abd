// Package kb owns the loaded knowledge base: the chunk store, the vector index and
// the id map that ties them together, swapped as one unit on reload.
package kb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hyperjump/tutor/internal/apperr"
	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/storage"
	"github.com/hyperjump/tutor/internal/vector"
)

// Snapshot is one immutable, consistent view of the knowledge base.
type Snapshot struct {
	Store    storage.ChunkStore
	Index    vector.Index
	IDMap    *vector.IDMap
	LoadedAt time.Time
	Version  uint64

	mu      sync.RWMutex
	retired bool
}

// NewSnapshot checks that the parts belong together and returns a snapshot over them.
func NewSnapshot(store storage.ChunkStore, index vector.Index, ids *vector.IDMap) (*Snapshot, error) {
	if store == nil || index == nil || ids == nil {
		return nil, apperr.New(apperr.IndexUnavailable, "kb snapshot", "store, index and id map are all required")
	}
	if ids.Len() != index.Size() {
		return nil, apperr.New(apperr.IndexUnavailable, "kb snapshot",
			"id map has %d entries but index has %d vectors", ids.Len(), index.Size())
	}
	return &Snapshot{Store: store, Index: index, IDMap: ids, LoadedAt: time.Now()}, nil
}

// close releases the snapshot's resources.
func (s *Snapshot) close() error {
	return errors.Join(s.Index.Close(), s.Store.Close())
}

// Loader produces a fresh snapshot from durable storage.
type Loader func(ctx context.Context) (*Snapshot, error)

// loadAttempts bounds how often FileLoader starts over when files are republished while
// it reads them.
const loadAttempts = 3

// FileLoader loads the database, index and id map paths named in cfg.
// The index must have dimensions vectors of the configured metric.
func FileLoader(cfg *config.Config, dimensions int) Loader {
	return func(ctx context.Context) (*Snapshot, error) {
		paths := []string{cfg.Storage.DatabasePath, cfg.Storage.IndexPath, cfg.Storage.IDMapPath}
		for attempt := 0; attempt < loadAttempts; attempt++ {
			before := stampFiles(paths)
			snap, err := loadFiles(cfg, dimensions)
			if stampFiles(paths) == before {
				return snap, err
			}
			if snap != nil {
				_ = snap.close()
			}
			if err := ctx.Err(); err != nil {
				return nil, apperr.Wrap(apperr.Canceled, "load knowledge base", err)
			}
		}
		return nil, apperr.New(apperr.IndexUnavailable, "load knowledge base",
			"knowledge base files changed during %d load attempts", loadAttempts)
	}
}

func loadFiles(cfg *config.Config, dimensions int) (*Snapshot, error) {
	store, err := storage.OpenSQLiteReadOnly(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, apperr.Wrap(apperr.IndexUnavailable, "load chunk store", err)
	}
	index, err := vector.OpenVectorIndex(&cfg.Vector, dimensions, cfg.Storage.IndexPath)
	if err != nil {
		_ = store.Close()
		return nil, apperr.Wrap(apperr.IndexUnavailable, "load vector index", err)
	}
	ids, err := vector.LoadIDMap(cfg.Storage.IDMapPath)
	if err != nil {
		_ = store.Close()
		_ = index.Close()
		return nil, apperr.Wrap(apperr.IndexUnavailable, "load id map", err)
	}
	snap, err := NewSnapshot(store, index, ids)
	if err != nil {
		_ = store.Close()
		_ = index.Close()
		return nil, fmt.Errorf("%s: %w", cfg.Storage.IndexPath, err)
	}
	return snap, nil
}

type fileStamp struct {
	exists  bool
	size    int64
	modTime int64
}

// stampFiles identifies the current version of each path; a rename over a path changes it.
func stampFiles(paths []string) [3]fileStamp {
	var out [3]fileStamp
	for i, p := range paths {
		if info, err := os.Stat(p); err == nil {
			out[i] = fileStamp{exists: true, size: info.Size(), modTime: info.ModTime().UnixNano()}
		}
	}
	return out
}
