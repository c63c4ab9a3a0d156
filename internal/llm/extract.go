package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSON locates the first balanced JSON object inside free-form
// generated text and returns it verbatim. Models often wrap structured output
// in prose or markdown fences; the surrounding text is ignored. Fails with
// ErrMalformedOutput when no region parses as a JSON object.
func ExtractJSON(text string) (json.RawMessage, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := matchBrace(text, start)
		if end < 0 {
			break
		}
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, ErrMalformedOutput
}

// matchBrace returns the index of the brace closing the object opened at
// start, honoring string literals and escapes, or -1 if unbalanced.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
