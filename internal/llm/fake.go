package llm

import (
	"context"
	"strings"
)

// FakeGenerator returns deterministic scripted chunks for offline/testing.
// With no script configured it splits a canned sentence into word chunks.
type FakeGenerator struct {
	Chunks []string
	// Err, when set, is returned after FailAfter chunks have been emitted,
	// simulating a mid-stream generator failure.
	Err       error
	FailAfter int
}

func NewFakeGenerator(chunks ...string) *FakeGenerator {
	return &FakeGenerator{Chunks: chunks}
}

func (f *FakeGenerator) Name() string { return "FakeLLM" }

func (f *FakeGenerator) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	chunks := f.Chunks
	if len(chunks) == 0 {
		chunks = strings.SplitAfter("Fake analysis of the requested scenario. ", " ")
	}

	var full strings.Builder
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if f.Err != nil && i >= f.FailAfter {
			return "", f.Err
		}
		full.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
	if f.Err != nil && f.FailAfter >= len(chunks) {
		return "", f.Err
	}
	return full.String(), nil
}
