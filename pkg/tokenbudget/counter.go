// Package tokenbudget counts and trims text against per-consumer token ceilings.
package tokenbudget

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter provides deterministic token counting and token-boundary trimming.
type Counter struct {
	codec tokenizer.Codec
}

var (
	defaultOnce    sync.Once
	defaultCounter *Counter
)

// NewCounter creates a counter using the cl100k (GPT-4) encoding.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// DefaultCounter returns a shared counter. If the codec cannot be loaded the
// counter estimates four characters per token.
func DefaultCounter() *Counter {
	defaultOnce.Do(func() {
		c, err := NewCounter()
		if err != nil {
			c = &Counter{}
		}
		defaultCounter = c
	})
	return defaultCounter
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.codec == nil {
		return estimate(text)
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return estimate(text)
	}
	return n
}

// Trim cuts text to at most maxTokens tokens. With preserveEnd the tail is
// kept, otherwise the head. The result always re-counts within maxTokens.
func (c *Counter) Trim(text string, maxTokens int, preserveEnd bool) string {
	if maxTokens <= 0 {
		return ""
	}
	if c.Count(text) <= maxTokens {
		return text
	}
	if c.codec == nil {
		return trimChars(text, maxTokens*4, preserveEnd)
	}

	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return trimChars(text, maxTokens*4, preserveEnd)
	}

	keep := maxTokens
	for keep > 0 {
		var window []uint
		if preserveEnd {
			window = ids[len(ids)-keep:]
		} else {
			window = ids[:keep]
		}
		out, err := c.codec.Decode(window)
		if err == nil && c.Count(out) <= maxTokens {
			return out
		}
		// A cut inside a multi-byte sequence can re-encode longer; shrink until stable.
		keep--
	}
	return ""
}

func estimate(text string) int {
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

func trimChars(text string, maxChars int, preserveEnd bool) string {
	r := []rune(text)
	if len(r) <= maxChars {
		return text
	}
	if preserveEnd {
		return string(r[len(r)-maxChars:])
	}
	return string(r[:maxChars])
}
