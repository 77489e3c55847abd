package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tutor/internal/models"
)

// maxLookupParams keeps IN (...) lists below SQLite's host parameter limit.
const maxLookupParams = 500

const chunkColumns = `id, text, source_url, title, kind, chunk_index`

// SQLiteStorage implements ChunkStore using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	readOnly bool
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. Databases use a rollback journal:
// published files are replaced by rename, and WAL side files belong to the path, not the file.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// OpenSQLiteReadOnly opens an existing database for queries only. It fails if the
// file or the chunks table is missing. The store keeps a single connection for its
// lifetime, so it goes on reading the file it opened after a new one is published at
// dbPath.
func OpenSQLiteReadOnly(dbPath string) (*SQLiteStorage, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db, err := sql.Open("sqlite3", readOnlyDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if _, err := db.Exec(`SELECT 1 FROM chunks LIMIT 1`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database %s has no chunks table: %w", dbPath, err)
	}
	return &SQLiteStorage{db: db, readOnly: true}, nil
}

func readOnlyDSN(dbPath string) string {
	return (&url.URL{Scheme: "file", Path: dbPath, RawQuery: "mode=ro"}).String()
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		chunk_index INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_url ON chunks(source_url);
	`
	_, err := db.Exec(schema)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*models.ChunkRecord, error) {
	var c models.ChunkRecord
	if err := row.Scan(&c.ID, &c.Text, &c.SourceURL, &c.Title, &c.Kind, &c.ChunkIndex); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChunk returns a chunk by ID, or ErrChunkNotFound.
func (s *SQLiteStorage) GetChunk(ctx context.Context, id string) (*models.ChunkRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetChunks returns the records for ids keyed by id, in as few queries as possible.
func (s *SQLiteStorage) GetChunks(ctx context.Context, ids []string) (map[string]*models.ChunkRecord, error) {
	out := make(map[string]*models.ChunkRecord, len(ids))
	for start := 0; start < len(ids); start += maxLookupParams {
		batch := ids[start:min(start+maxLookupParams, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (?` + strings.Repeat(",?", len(batch)-1) + `)`
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			c, err := scanChunk(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[c.ID] = c
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListChunks returns chunks ordered by id with offset and limit.
func (s *SQLiteStorage) ListChunks(ctx context.Context, offset, limit int) ([]*models.ChunkRecord, error) {
	if limit < 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// BatchUpsertChunks inserts or replaces multiple chunks in one transaction.
func (s *SQLiteStorage) BatchUpsertChunks(ctx context.Context, chunks []*models.ChunkRecord) error {
	if s.readOnly {
		return fmt.Errorf("database is open read-only")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk with empty id")
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.SourceURL, c.Title, c.Kind, c.ChunkIndex); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteAllChunks empties the chunks table.
func (s *SQLiteStorage) DeleteAllChunks(ctx context.Context) error {
	if s.readOnly {
		return fmt.Errorf("database is open read-only")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks`)
	return err
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
