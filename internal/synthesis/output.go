package synthesis

import (
	"encoding/json"
	"strings"

	"github.com/hyperjump/tutor/internal/models"
)

// ModelOutput is the parsed model response: either StructuredOutput or FallbackOutput.
type ModelOutput interface {
	isModelOutput()
}

// StructuredOutput is a response that carried a JSON object with an answer.
type StructuredOutput struct {
	Answer string
	Links  []models.Link
}

// FallbackOutput is any other response; Raw is used as the answer.
type FallbackOutput struct {
	Raw string
}

func (StructuredOutput) isModelOutput() {}
func (FallbackOutput) isModelOutput()   {}

// ParseOutput extracts {answer, links} from raw model text. The JSON object may be wrapped
// in a Markdown code fence or surrounded by prose, which may itself contain braces. The
// first object with a non-empty string answer wins; without one the response becomes a
// FallbackOutput.
func ParseOutput(raw string) ModelOutput {
	raw = strings.TrimSpace(raw)
	body := stripCodeFence(raw)
	for i := 0; i < len(body); i++ {
		if body[i] != '{' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(body[i:]))
		var parsed struct {
			Answer json.RawMessage `json:"answer"`
			Links  json.RawMessage `json:"links"`
		}
		if err := dec.Decode(&parsed); err != nil {
			continue
		}
		var answer string
		if err := json.Unmarshal(parsed.Answer, &answer); err != nil || strings.TrimSpace(answer) == "" {
			// Nested objects never carry the reply.
			i += int(dec.InputOffset()) - 1
			continue
		}
		return StructuredOutput{Answer: strings.TrimSpace(answer), Links: parseLinks(parsed.Links)}
	}
	return FallbackOutput{Raw: raw}
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// parseLinks accepts [{url, text}] or a plain list of URLs. Malformed entries are skipped.
func parseLinks(raw json.RawMessage) []models.Link {
	if len(raw) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	links := make([]models.Link, 0, len(items))
	for _, item := range items {
		var l models.Link
		if err := json.Unmarshal(item, &l); err == nil {
			l.URL = strings.TrimSpace(l.URL)
			l.Text = strings.TrimSpace(l.Text)
			if l.URL != "" {
				links = append(links, l)
			}
			continue
		}
		var url string
		if err := json.Unmarshal(item, &url); err == nil && strings.TrimSpace(url) != "" {
			links = append(links, models.Link{URL: strings.TrimSpace(url)})
		}
	}
	return links
}
