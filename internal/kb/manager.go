package kb

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/tutor/internal/apperr"
)

// Manager holds the current snapshot. Readers Acquire it for the duration of a request;
// Reload builds a new snapshot, swaps it in, and closes the old one once its readers are done.
type Manager struct {
	load    Loader
	current atomic.Pointer[Snapshot]
	version atomic.Uint64

	reloadMu sync.Mutex
	logger   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for reload events.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager that loads snapshots with load. Nothing is loaded until Load.
func NewManager(load Loader, opts ...Option) *Manager {
	m := &Manager{load: load, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load performs the initial load. It is equivalent to Reload.
func (m *Manager) Load(ctx context.Context) error {
	return m.Reload(ctx)
}

// Acquire returns the current snapshot and a release func that must be called when done.
// It fails with IndexUnavailable if nothing is loaded.
func (m *Manager) Acquire() (*Snapshot, func(), error) {
	for {
		s := m.current.Load()
		if s == nil {
			return nil, nil, apperr.New(apperr.IndexUnavailable, "kb acquire", "knowledge base is not loaded")
		}
		s.mu.RLock()
		if !s.retired {
			var once sync.Once
			return s, func() { once.Do(s.mu.RUnlock) }, nil
		}
		// Swapped out between Load and RLock; retry with the newer snapshot.
		s.mu.RUnlock()
	}
}

// Reload loads a new snapshot and swaps it in. On failure the current snapshot keeps serving.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	next, err := m.load(ctx)
	if err != nil {
		m.logger.Error("Knowledge base load failed", zap.Error(err))
		return apperr.Wrap(apperr.IndexUnavailable, "kb reload", err)
	}
	next.Version = m.version.Add(1)

	old := m.current.Swap(next)
	m.logger.Info("Knowledge base loaded",
		zap.Uint64("version", next.Version),
		zap.Int("vectors", next.Index.Size()),
		zap.String("index_type", next.Index.Type()),
		zap.String("metric", string(next.Index.Metric())),
	)
	if old != nil {
		m.retire(old)
	}
	return nil
}

// retire waits for in-flight readers of s and closes it.
func (m *Manager) retire(s *Snapshot) {
	s.mu.Lock()
	s.retired = true
	s.mu.Unlock()
	if err := s.close(); err != nil {
		m.logger.Warn("Failed to close retired snapshot", zap.Uint64("version", s.Version), zap.Error(err))
	}
}

// Loaded reports whether a snapshot is available.
func (m *Manager) Loaded() bool {
	return m.current.Load() != nil
}

// Close retires the current snapshot. Subsequent Acquire calls fail.
func (m *Manager) Close() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()
	if old := m.current.Swap(nil); old != nil {
		m.retire(old)
	}
	return nil
}
