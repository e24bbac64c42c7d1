package service

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures how much of a context budget a text consumes.
type TokenCounter interface {
	Count(text string) int
}

// CharCounter approximates tokens as four characters each.
type CharCounter struct{}

func (CharCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// NewTokenCounter returns the counter named by the TOKENIZER setting.
// "chars" (or empty) selects CharCounter; anything else is treated as a
// tiktoken encoding name.
func NewTokenCounter(name string) (TokenCounter, error) {
	if name == "" || name == "chars" {
		return CharCounter{}, nil
	}
	return NewTiktokenCounter(name)
}
