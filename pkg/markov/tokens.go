package markov

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. This allows the chain logic to be independent of the
// specific cleanup and splitting strategy.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
	// Separator returns the string that should be used to join tokens
	// when building a final generated string, using the previous and current
	// tokens.
	Separator(prev, current string) string
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (string, error)
}

// Tokenize reads r to the end and returns every token produced by t.
func Tokenize(t Tokenizer, r io.Reader) ([]string, error) {
	stream := t.NewStream(r)
	var tokens []string
	for {
		token, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return tokens, nil
		}
		if err != nil {
			return nil, fmt.Errorf("tokenizer error: %w", err)
		}
		tokens = append(tokens, token)
	}
}

// JoinTokens builds the display string of a generated sequence using the
// tokenizer's separators.
func JoinTokens(t Tokenizer, tokens []string) string {
	var builder strings.Builder
	for i, token := range tokens {
		if i > 0 {
			builder.WriteString(t.Separator(tokens[i-1], token))
		}
		builder.WriteString(token)
	}
	return builder.String()
}
