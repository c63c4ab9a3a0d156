package llm

import (
	"context"
	"strings"

	genai "google.golang.org/genai"
)

// GeminiGenerator is a thin wrapper around the official genai client. It only
// focuses on the streaming call itself; retries and rate limiting belong to
// the caller.
type GeminiGenerator struct {
	cli   *genai.Client
	model string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{cli: cli, model: model}, nil
}

func (g *GeminiGenerator) Name() string { return "Gemini:" + g.model }

// GenerateStream streams the model response chunk by chunk, forwarding each
// non-empty chunk to onChunk, and returns the concatenated text.
func (g *GeminiGenerator) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	var full strings.Builder
	sawChunk := false

	for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		nil,
	) {
		if err != nil {
			return "", err
		}
		chunk := chunkText(resp)
		if chunk == "" {
			continue
		}
		sawChunk = true
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	if !sawChunk {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

func chunkText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
