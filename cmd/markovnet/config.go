package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/CTAG07/markovnet/pkg/corpus"
	"github.com/CTAG07/markovnet/pkg/markov"
	"github.com/natefinch/atomic"
)

const (
	modeUniform  = "uniform"
	modeWeighted = "weighted"
)

// ServerConfig holds settings for the database and the HTTP API.
type ServerConfig struct {
	ApiAddr      string `json:"api_addr"`
	LogLevel     string `json:"log_level"`
	DatabasePath string `json:"database_path"`
}

// CorpusConfig controls how training text is decoded and split into tokens.
type CorpusConfig struct {
	Encoding   string `json:"encoding"`
	CleanRegex string `json:"clean_regex"`
	TokenRegex string `json:"token_regex"`
	Separator  string `json:"separator"`
}

// GenerationConfig holds defaults for generate requests.
type GenerationConfig struct {
	MaxLength int    `json:"max_length"`
	Mode      string `json:"mode"`

	// MaxLengthLimit caps the length a client may ask the API for.
	MaxLengthLimit int `json:"max_length_limit"`

	// Seed makes generation reproducible. Zero means a random seed per run.
	Seed uint64 `json:"seed"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig     `json:"server_config"`
	Corpus     *CorpusConfig     `json:"corpus_config"`
	Generation *GenerationConfig `json:"generation_config"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: &ServerConfig{
			ApiAddr:      ":7278",
			LogLevel:     "info",
			DatabasePath: "./data/markovnet.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		},
		Corpus: &CorpusConfig{
			Encoding:   corpus.UTF8,
			CleanRegex: ` +`,
			TokenRegex: `\S+`,
			Separator:  " ",
		},
		Generation: &GenerationConfig{
			MaxLength:      markov.DefaultMaxLength,
			Mode:           modeWeighted,
			MaxLengthLimit: 10000,
			Seed:           0,
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Warn instead of failing, as we can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal the JSON from the file into the config struct.
	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Sections missing from the file keep their defaults.
	defaults := DefaultConfig()
	if config.Server == nil {
		config.Server = defaults.Server
	}
	if config.Corpus == nil {
		config.Corpus = defaults.Corpus
	}
	if config.Generation == nil {
		config.Generation = defaults.Generation
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

// Validate checks the values that would otherwise fail late, deep inside a command.
func (c *Config) Validate() error {
	if _, err := corpus.Encoding(c.Corpus.Encoding); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.Corpus.CleanRegex); err != nil {
		return fmt.Errorf("clean_regex: %w", err)
	}
	if _, err := regexp.Compile(c.Corpus.TokenRegex); err != nil {
		return fmt.Errorf("token_regex: %w", err)
	}
	if c.Generation.MaxLength < 1 {
		return fmt.Errorf("max_length must be at least 1, got %d", c.Generation.MaxLength)
	}
	if c.Generation.MaxLengthLimit < c.Generation.MaxLength {
		return fmt.Errorf("max_length_limit %d is below max_length %d", c.Generation.MaxLengthLimit, c.Generation.MaxLength)
	}
	if err := validateMode(c.Generation.Mode); err != nil {
		return err
	}
	return nil
}

func validateMode(mode string) error {
	switch mode {
	case modeUniform, modeWeighted:
		return nil
	default:
		return fmt.Errorf("unknown generation mode %q, expected %q or %q", mode, modeUniform, modeWeighted)
	}
}

// Tokenizer builds the tokenizer described by the corpus config. Validate must
// have passed, since invalid expressions panic.
func (c *CorpusConfig) Tokenizer() *markov.DefaultTokenizer {
	return markov.NewDefaultTokenizer(
		markov.WithSeparator(c.Separator),
		markov.WithCleanRegex(c.CleanRegex),
		markov.WithTokenRegex(c.TokenRegex),
	)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
