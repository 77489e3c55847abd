package synthesis

import (
	"github.com/hyperjump/tutor/internal/models"
	"github.com/hyperjump/tutor/pkg/utils"
)

// CitationPolicy decides which model-supplied links survive.
type CitationPolicy string

const (
	// CitationGrounded keeps only links to the source of an included chunk.
	CitationGrounded CitationPolicy = "grounded"
	// CitationPassthrough keeps model links as produced.
	CitationPassthrough CitationPolicy = "passthrough"
)

const linkTextLen = 120

func linkText(c *models.ChunkRecord) string {
	if c.Title != "" {
		return c.Title
	}
	return utils.Shorten(c.Text, linkTextLen)
}

// contextLinks derives one link per distinct source URL, in similarity order.
func contextLinks(chunks []*models.RetrievedChunk, max int) []models.Link {
	links := make([]models.Link, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		url := c.Chunk.SourceURL
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		links = append(links, models.Link{URL: url, Text: linkText(c.Chunk)})
	}
	return capLinks(links, max)
}

// resolveLinks applies policy to the model links. When no model link survives, links
// are derived from the included chunks.
func resolveLinks(policy CitationPolicy, modelLinks []models.Link, chunks []*models.RetrievedChunk, max int) []models.Link {
	sources := make(map[string]*models.ChunkRecord, len(chunks))
	for _, c := range chunks {
		if _, ok := sources[c.Chunk.SourceURL]; !ok {
			sources[c.Chunk.SourceURL] = c.Chunk
		}
	}

	links := make([]models.Link, 0, len(modelLinks))
	seen := make(map[string]bool, len(modelLinks))
	for _, l := range modelLinks {
		if l.URL == "" || seen[l.URL] {
			continue
		}
		chunk, grounded := sources[l.URL]
		if policy == CitationGrounded && !grounded {
			continue
		}
		if l.Text == "" && grounded {
			l.Text = linkText(chunk)
		}
		seen[l.URL] = true
		links = append(links, l)
	}
	if len(links) == 0 {
		return contextLinks(chunks, max)
	}
	return capLinks(links, max)
}

func capLinks(links []models.Link, max int) []models.Link {
	if max > 0 && len(links) > max {
		return links[:max]
	}
	return links
}
