package memory

import (
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/higress-group/newsrag/common/logger"
)

// Counter estimates the token count of a text.
type Counter interface {
	Count(text string) int
}

// EstimateCounter approximates four characters per token.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// TokenCounter counts with a tiktoken encoding and falls back to the
// character estimate when the encoding could not be loaded.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warnf("memory: tiktoken encoding %s unavailable, using character estimate, err: %v", encoding, err)
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (c *TokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		return EstimateCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}
