// Package models defines core data structures for chunks, queries, and answers.
package models

// Chunk kinds, one per ingestion source.
const (
	KindCourse    = "course"
	KindDiscourse = "discourse"
)

// ChunkRecord is a stored span of course notes or forum text, the unit of retrieval.
type ChunkRecord struct {
	ID         string `json:"id" db:"id"`
	Text       string `json:"text" db:"text"`
	SourceURL  string `json:"source_url" db:"source_url"`
	Title      string `json:"title" db:"title"`
	Kind       string `json:"kind" db:"kind"`
	ChunkIndex int    `json:"chunk_index" db:"chunk_index"`
}

// IndexEntry maps a vector index position to a chunk ID.
type IndexEntry struct {
	Position int    `json:"position"`
	ChunkID  string `json:"chunk_id"`
}
