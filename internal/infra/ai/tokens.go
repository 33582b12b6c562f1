// File: internal/infra/ai/tokens.go
package ai

import (
	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token usage for providers that do not report it.
// It prefers a real cl100k_base encoding and falls back to a characters/4
// heuristic when the vocabulary is unavailable (offline environments).
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter() *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc == nil {
		return approxTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// approxTokens is the usual 4-characters-per-token rule of thumb, rounded up.
func approxTokens(text string) int {
	return (len(text) + 3) / 4
}
