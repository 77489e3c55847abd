package models

import "fmt"

// RetrievedChunk is a chunk returned by retrieval with its similarity score and index position.
type RetrievedChunk struct {
	Chunk    *ChunkRecord `json:"chunk"`
	Score    float64      `json:"score"`
	Position int          `json:"position"`
}

// RetrievedContext is the ordered retrieval result for one question, highest score first.
type RetrievedContext struct {
	Chunks []*RetrievedChunk `json:"chunks"`
}

// Len returns the number of retrieved chunks; a nil context has none.
func (rc *RetrievedContext) Len() int {
	if rc == nil {
		return 0
	}
	return len(rc.Chunks)
}

// Link is a source citation in an answer.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// AnswerResult is the externally visible response: an answer plus supporting links.
type AnswerResult struct {
	Answer string `json:"answer"`
	Links  []Link `json:"links"`
}

// Normalize makes Links serialize as an empty array rather than null.
func (r *AnswerResult) Normalize() {
	if r.Links == nil {
		r.Links = []Link{}
	}
}

// Validate checks the {answer, links[{url, text}]} contract.
func (r *AnswerResult) Validate() error {
	if r == nil {
		return fmt.Errorf("answer result is nil")
	}
	if r.Links == nil {
		return fmt.Errorf("links must be an array")
	}
	for i, l := range r.Links {
		if l.URL == "" {
			return fmt.Errorf("link %d has an empty url", i)
		}
	}
	return nil
}
