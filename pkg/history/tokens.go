package history

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with a BPE encoding when one is loaded and
// falls back to a character estimate otherwise. The zero value estimates.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads encoding (for example "cl100k_base"). Loading can
// fail offline; the returned counter then estimates.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &TokenCounter{}, err
	}
	return &TokenCounter{enc: enc}, nil
}

// Exact reports whether counts come from a real encoding.
func (c *TokenCounter) Exact() bool {
	return c != nil && c.enc != nil
}

func (c *TokenCounter) Count(text string) int {
	if c.Exact() {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// CountMessages sums the content tokens of messages.
func (c *TokenCounter) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += c.Count(m.Content)
	}
	return total
}

// Truncate cuts text to at most limit tokens, appending "..." when cut.
func (c *TokenCounter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if c.Exact() {
		tokens := c.enc.Encode(text, nil, nil)
		if len(tokens) <= limit {
			return text
		}
		return c.enc.Decode(tokens[:limit]) + "..."
	}
	maxRunes := limit * 4
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	return string([]rune(text)[:maxRunes]) + "..."
}

// estimateTokens assumes roughly four characters per token.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
