package synthesis

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini GenerateContent API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewGeminiGenerator creates a generator. An empty apiKey lets the client fall back to
// GEMINI_API_KEY / GOOGLE_API_KEY.
func NewGeminiGenerator(ctx context.Context, apiKey, baseURL, model string, temperature float32, maxTokens int) (*GeminiGenerator, error) {
	cc := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model, temperature: temperature, maxTokens: maxTokens}, nil
}

// Name returns the provider and model.
func (g *GeminiGenerator) Name() string { return "gemini/" + g.model }

// Generate sends the prompt, plus the image if any, as one user turn.
func (g *GeminiGenerator) Generate(ctx context.Context, req *Request) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if img := req.Image; img != nil {
		if img.IsReference() {
			parts = append(parts, genai.NewPartFromURI(img.URL, referenceMIMEType(img.URL)))
		} else {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxTokens),
	}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, gc)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("generate content returned no candidates")
	}
	return strings.TrimSpace(resp.Text()), nil
}

func referenceMIMEType(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
