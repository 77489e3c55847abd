package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StagedSQLite is a writable chunk database built beside its final path and published
// with a rename. Read-only stores opened on the previous file keep reading it.
type StagedSQLite struct {
	*SQLiteStorage
	path    string
	tmpPath string
	done    bool
}

// StageSQLite creates a staging database next to dbPath. With keep, the current contents
// of dbPath (if any) are copied in first; otherwise staging starts empty.
func StageSQLite(ctx context.Context, dbPath string, keep bool) (*StagedSQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(dbPath)+".staging-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging database: %w", err)
	}
	tmpPath := f.Name()
	_ = f.Close()
	// VACUUM INTO refuses to write over an existing file.
	if err := os.Remove(tmpPath); err != nil {
		return nil, fmt.Errorf("failed to prepare staging database: %w", err)
	}

	if keep {
		if _, err := os.Stat(dbPath); err == nil {
			if err := copyDatabase(ctx, dbPath, tmpPath); err != nil {
				removeDatabaseFiles(tmpPath)
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat database: %w", err)
		}
	}

	store, err := NewSQLiteStorage(tmpPath)
	if err != nil {
		removeDatabaseFiles(tmpPath)
		return nil, err
	}
	return &StagedSQLite{SQLiteStorage: store, path: dbPath, tmpPath: tmpPath}, nil
}

// copyDatabase writes a consistent copy of src to dst, including pages still held in a
// WAL file left by older versions.
func copyDatabase(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite3", readOnlyDSN(src))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return nil
}

// Path returns the staging file path.
func (s *StagedSQLite) Path() string { return s.tmpPath }

// Publish closes the staging database and renames it over the final path.
func (s *StagedSQLite) Publish() error {
	if s.done {
		return errors.New("staged database already published or discarded")
	}
	s.done = true
	if err := s.SQLiteStorage.Close(); err != nil {
		removeDatabaseFiles(s.tmpPath)
		return fmt.Errorf("failed to close staging database: %w", err)
	}
	// A stale WAL next to the new file would be replayed into it on the next open.
	for _, side := range []string{s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(side); err != nil && !errors.Is(err, os.ErrNotExist) {
			removeDatabaseFiles(s.tmpPath)
			return fmt.Errorf("failed to remove %s: %w", side, err)
		}
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		removeDatabaseFiles(s.tmpPath)
		return fmt.Errorf("failed to publish database: %w", err)
	}
	return nil
}

// Discard drops the staging database. It is a no-op after Publish.
func (s *StagedSQLite) Discard() {
	if s.done {
		return
	}
	s.done = true
	_ = s.SQLiteStorage.Close()
	removeDatabaseFiles(s.tmpPath)
}

func removeDatabaseFiles(path string) {
	for _, p := range SQLiteFiles(path) {
		_ = os.Remove(p)
	}
}
