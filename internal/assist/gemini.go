package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// GeminiGenerator calls the Gemini generateContent endpoint. A client is
// built lazily and rebuilt when the API key changes.
type GeminiGenerator struct {
	Model   string
	BaseURL string

	mu     sync.Mutex
	key    string
	client *genai.Client
}

func NewGeminiGenerator(model, baseURL string) *GeminiGenerator {
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	return &GeminiGenerator{Model: model, BaseURL: strings.TrimSpace(baseURL)}
}

func (g *GeminiGenerator) Generate(ctx context.Context, apiKey, prompt string, schema *genai.Schema) (string, error) {
	client, err := g.clientFor(ctx, apiKey)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	resp, err := client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("gemini returned an empty response")
	}
	return text, nil
}

func (g *GeminiGenerator) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoCredential
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil && g.key == apiKey {
		return g.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	g.client = client
	g.key = apiKey
	return client, nil
}
