// Package indexer ingests course and forum content into the chunk store and builds the
// vector index over it.
package indexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/hyperjump/tutor/internal/config"
	"github.com/hyperjump/tutor/internal/models"
)

// Splitter cuts a body of text into chunk texts.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// WrapSplitter packs whole words greedily into lines of at most Width characters.
// Words longer than Width are broken.
type WrapSplitter struct {
	Width int
}

// SplitText returns the wrapped lines of text; whitespace runs become single spaces.
func (w WrapSplitter) SplitText(text string) ([]string, error) {
	if w.Width <= 0 {
		return nil, fmt.Errorf("wrap width must be positive, got %d", w.Width)
	}
	var (
		lines   []string
		line    strings.Builder
		lineLen int
	)
	flush := func() {
		if lineLen > 0 {
			lines = append(lines, line.String())
			line.Reset()
			lineLen = 0
		}
	}
	for _, word := range strings.Fields(text) {
		n := utf8.RuneCountInString(word)
		if lineLen > 0 && lineLen+1+n <= w.Width {
			line.WriteByte(' ')
			line.WriteString(word)
			lineLen += 1 + n
			continue
		}
		flush()
		for n > w.Width {
			r := []rune(word)
			lines = append(lines, string(r[:w.Width]))
			word = string(r[w.Width:])
			n -= w.Width
		}
		line.WriteString(word)
		lineLen = n
	}
	flush()
	return lines, nil
}

// NewSplitter returns the splitter selected by cfg.
func NewSplitter(cfg *config.IngestConfig) (Splitter, error) {
	switch cfg.Splitter {
	case "", "wrap":
		return WrapSplitter{Width: cfg.ChunkSize}, nil
	case "recursive":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		), nil
	default:
		return nil, fmt.Errorf("unknown splitter: %s", cfg.Splitter)
	}
}

// Chunker turns source items into chunk records with ids "<item id>_<n>".
type Chunker struct {
	splitter Splitter
}

// NewChunker creates a chunker over splitter.
func NewChunker(splitter Splitter) *Chunker {
	return &Chunker{splitter: splitter}
}

// Chunk splits item's body. Blank bodies and blank pieces produce no chunks.
func (c *Chunker) Chunk(item *SourceItem, kind string) ([]*models.ChunkRecord, error) {
	body := item.Body()
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	pieces, err := c.splitter.SplitText(body)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", item.ID, err)
	}
	chunks := make([]*models.ChunkRecord, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		n := len(chunks)
		chunks = append(chunks, &models.ChunkRecord{
			ID:         fmt.Sprintf("%s_%d", item.ID, n),
			Text:       p,
			SourceURL:  item.URL,
			Title:      item.DisplayTitle(),
			Kind:       kind,
			ChunkIndex: n,
		})
	}
	return chunks, nil
}
