package synthesis

import (
	"fmt"
	"strings"

	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/pkg/utils"
)

const passageSeparator = "\n\n"

// assembledContext is the passage text sent to the model and the chunks it covers,
// in decreasing similarity.
type assembledContext struct {
	Text   string
	Chunks []*models.RetrievedChunk
}

// cleanPassage flattens newlines and cuts the text at the first inline image.
func cleanPassage(text string) string {
	if i := strings.Index(text, "!["); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

func passageHeader(n int, c *models.ChunkRecord) string {
	header := fmt.Sprintf("(Passage %d) Source: %s", n, c.SourceURL)
	if c.Title != "" {
		header += " | " + c.Title
	}
	return header + "\n"
}

// assembleContext builds numbered passage blocks that fit in budget runes. The lowest
// similarity chunks are dropped first; when even the best chunk is too large its text is
// truncated. A budget <= 0 means no limit.
func assembleContext(rc *models.RetrievedContext, budget int) assembledContext {
	if rc.Len() == 0 {
		return assembledContext{}
	}
	blocks := make([]string, len(rc.Chunks))
	for i, c := range rc.Chunks {
		blocks[i] = passageHeader(i+1, c.Chunk) + cleanPassage(c.Chunk.Text)
	}
	if budget <= 0 {
		return assembledContext{Text: strings.Join(blocks, passageSeparator), Chunks: rc.Chunks}
	}

	n, total := 0, 0
	for i, b := range blocks {
		size := utils.RuneLen(b)
		if i > 0 {
			size += len(passageSeparator)
		}
		if total+size > budget {
			break
		}
		total += size
		n++
	}
	if n > 0 {
		return assembledContext{Text: strings.Join(blocks[:n], passageSeparator), Chunks: rc.Chunks[:n]}
	}
	return assembledContext{Text: utils.HeadRunes(blocks[0], budget), Chunks: rc.Chunks[:1]}
}
