package markov

import (
	"bufio"
	"io"
	"regexp"
)

// DefaultTokenizer is a default implementation of the Tokenizer interface.
// It cleans every line with a replacement regular expression and then extracts
// whitespace-delimited words with a second one. No case or punctuation
// normalization is done, so "The" and "the," are distinct tokens.
// Its behavior can be customized with functional options.
type DefaultTokenizer struct {
	separator  string
	cleanRegex *regexp.Regexp
	tokenRegex *regexp.Regexp
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithSeparator Sets the string used for joining tokens during generation.
// Default: " "
func WithSeparator(sep string) Option {
	return func(t *DefaultTokenizer) {
		t.separator = sep
	}
}

// WithCleanRegex sets the regex whose matches are replaced by a single space
// before tokens are extracted.
// Default: ` +`
func WithCleanRegex(cleanRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.cleanRegex = regexp.MustCompile(cleanRegex)
	}
}

// WithTokenRegex sets the regex string used to extract tokens from cleaned text.
// Default: `\S+`
func WithTokenRegex(tokenRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.tokenRegex = regexp.MustCompile(tokenRegex)
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions. Invalid regular
// expressions passed through options cause a panic, as with regexp.MustCompile.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		separator: " ",
		// Runs of spaces collapse into one.
		cleanRegex: regexp.MustCompile(` +`),
		// Any run of non-whitespace is a token.
		tokenRegex: regexp.MustCompile(`\S+`),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Separator Returns the configured separator string.
func (t *DefaultTokenizer) Separator(_, _ string) string {
	return t.separator
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	// Corpora often hold long unwrapped paragraphs.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &DefaultStreamTokenizer{
		scanner:    scanner,
		buffer:     []string{},
		cleanRegex: t.cleanRegex,
		tokenRegex: t.tokenRegex,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer interface.
// It uses a bufio.Scanner and regular expressions to read and tokenize a stream.
type DefaultStreamTokenizer struct {
	scanner    *bufio.Scanner
	buffer     []string
	cleanRegex *regexp.Regexp
	tokenRegex *regexp.Regexp
}

// Next returns the next token from the stream. It returns the token and a nil
// error on success. When the stream is exhausted, it returns an empty string
// and io.EOF. Any other error indicates a problem reading from the underlying
// stream.
func (s *DefaultStreamTokenizer) Next() (string, error) {
	for len(s.buffer) == 0 { // Loop until we have tokens
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		line := s.cleanRegex.ReplaceAllString(s.scanner.Text(), " ")
		s.buffer = s.tokenRegex.FindAllString(line, -1)
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:] // Consume the token
	return word, nil
}
