// Package corpus opens training text and decodes it to UTF-8 so it can be fed
// to a markov.Tokenizer.
package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnknownEncoding is returned for encoding names that are not supported.
var ErrUnknownEncoding = errors.New("corpus: unknown encoding")

// Supported encoding names. Matching is case-insensitive.
const (
	UTF8    = "utf-8"
	UTF16   = "utf-16"
	UTF16LE = "utf-16le"
	UTF16BE = "utf-16be"
)

// Encoding resolves an encoding name. An empty name means UTF-8.
// UTF-16 honours a byte order mark and assumes little-endian without one.
func Encoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", UTF8, "utf8":
		return unicode.UTF8BOM, nil
	case UTF16, "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// NewReader wraps r so that it yields UTF-8 text decoded from the named encoding.
func NewReader(r io.Reader, encodingName string) (io.Reader, error) {
	enc, err := Encoding(encodingName)
	if err != nil {
		return nil, err
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

type decodedFile struct {
	io.Reader
	file *os.File
}

func (d *decodedFile) Close() error {
	return d.file.Close()
}

// Open opens the file at path and returns a reader of its decoded UTF-8 text.
// The caller must close it.
func Open(path, encodingName string) (io.ReadCloser, error) {
	enc, err := Encoding(encodingName)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open corpus: %w", err)
	}
	return &decodedFile{
		Reader: transform.NewReader(file, enc.NewDecoder()),
		file:   file,
	}, nil
}
