// Package llm wraps the external text-generation service behind a streaming
// contract: a prompt in, a lazy finite sequence of text chunks out. A
// mid-stream error means the sequence died; callers discard partial text.
package llm

import (
	"context"
	"errors"
)

// ErrEmptyResponse is returned when the model produced no candidates at all.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// ErrMalformedOutput is returned by ExtractJSON when free-form generated text
// contains no valid structured payload.
var ErrMalformedOutput = errors.New("llm: no structured payload in generated text")

// TextGenerator produces text for a prompt, invoking onChunk for each
// incremental chunk in emission order, and returns the full concatenated text.
// The chunk sequence is finite and non-restartable.
type TextGenerator interface {
	GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error)
}
