package model

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenLimiter caps text at a number of provider tokens.
type TokenLimiter struct {
	enc *tiktoken.Tiktoken
	max int
}

// NewTokenLimiter loads the BPE encoding used by model. Models unknown to
// tiktoken fall back to cl100k_base, which every OpenAI embedding model uses.
func NewTokenLimiter(model string, max int) (*TokenLimiter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("loading token encoding: %w", err)
		}
	}
	return &TokenLimiter{enc: enc, max: max}, nil
}

// Truncate returns text cut to the limit and the number of tokens dropped.
func (l *TokenLimiter) Truncate(text string) (string, int) {
	tokens := l.enc.Encode(text, nil, nil)
	if len(tokens) <= l.max {
		return text, 0
	}
	return l.enc.Decode(tokens[:l.max]), len(tokens) - l.max
}

func (l *TokenLimiter) Max() int {
	return l.max
}
