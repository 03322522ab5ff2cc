// Package tokens provides tiktoken-based token counting for transcript
// budgeting.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides token counting for a model family. All supported
// providers are approximated with the GPT-4 encoding, which is close enough
// for window-trimming decisions.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a token counter. The model name is accepted for future
// per-model encodings; currently everything maps to the GPT-4 codec.
func NewCounter(model string) (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text, falling back to a
// character-based estimate (4 chars per token) if the codec fails.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return len(text) / 4
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Estimate provides a codec-free estimate for callers that cannot
// construct a Counter.
func Estimate(text string) int {
	return len(text) / 4
}
