package markov

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
)

// DefaultMaxLength is the number of tokens generated when WithMaxLength is not given.
const DefaultMaxLength = 100

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	maxLength  int
	startToken string
	hasStart   bool
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in generation functions like GenerateUniform and StreamWeighted.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of tokens to generate, including the
// start token. Generation may stop earlier when it reaches a dead end.
// Values below 1 make generation fail with ErrInvalidInput.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithStartToken fixes the first token of the generated sequence. The token must
// have at least one recorded successor, otherwise generation fails with
// ErrInvalidInput. Without this option a start token is drawn uniformly from
// the network's predecessors.
func WithStartToken(token string) GenerateOption {
	return func(o *generateOptions) {
		o.startToken = token
		o.hasStart = true
	}
}

// Sampler walks a network to produce token sequences. It owns its random
// source, so a Sampler must not be shared between goroutines. The networks it
// walks are only read and can be shared freely.
type Sampler struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// NewSampler returns a Sampler drawing from src. A nil src gives a randomly
// seeded PCG source. Pass a seeded source, e.g. rand.NewPCG(1, 2), for
// reproducible output.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Sampler{
		rng:    rand.New(src),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetLogger sets the logger for the Sampler. By default, all logs are discarded.
func (s *Sampler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// walker abstracts the two traversal modes over their respective networks.
type walker interface {
	mode() string
	keys() []string
	has(token string) bool
	// step picks a successor of current. It returns false on a dead end.
	step(rng *rand.Rand, current string) (string, bool)
}

type uniformWalk struct{ n *CountNetwork }

func (w uniformWalk) mode() string          { return "uniform" }
func (w uniformWalk) keys() []string        { return w.n.tokens }
func (w uniformWalk) has(token string) bool { return w.n.Has(token) }

func (w uniformWalk) step(rng *rand.Rand, current string) (string, bool) {
	count := w.n.successorCount(current)
	if count == 0 {
		return "", false
	}
	return w.n.successorAt(current, rng.IntN(count)), true
}

type weightedWalk struct{ p *ProbabilityNetwork }

func (w weightedWalk) mode() string          { return "weighted" }
func (w weightedWalk) keys() []string        { return w.p.tokens }
func (w weightedWalk) has(token string) bool { return w.p.Has(token) }

func (w weightedWalk) step(rng *rand.Rand, current string) (string, bool) {
	entries, ok := w.p.rows[current]
	if !ok || len(entries) == 0 {
		return "", false
	}
	return entries[selectCumulative(entries, rng.Float64())].Token, true
}

// selectCumulative implements inverse-CDF selection: it returns the index of
// the first entry whose cumulative value is >= r. The matching entry itself is
// chosen, so r at or below the first value selects index 0. If rounding leaves
// every value below r, the last entry is chosen.
func selectCumulative(entries []Cumulative, r float64) int {
	for i, e := range entries {
		if e.P >= r {
			return i
		}
	}
	return len(entries) - 1
}

// GenerateUniform walks the count network choosing every successor with equal
// probability, ignoring how often it was observed. The returned sequence starts
// with the start token and has between 1 and the max length tokens; it is
// shorter when the walk reaches a token without successors.
func (s *Sampler) GenerateUniform(network *CountNetwork, opts ...GenerateOption) ([]string, error) {
	var w walker = uniformWalk{n: network}
	if network == nil {
		w = uniformWalk{n: NewCountNetwork()}
	}
	return s.generate(w, opts...)
}

// GenerateWeighted walks the probability network choosing successors in
// proportion to their observed frequency. Length and termination follow
// GenerateUniform.
func (s *Sampler) GenerateWeighted(network *ProbabilityNetwork, opts ...GenerateOption) ([]string, error) {
	var w walker = weightedWalk{p: network}
	if network == nil {
		w = weightedWalk{p: &ProbabilityNetwork{}}
	}
	return s.generate(w, opts...)
}

func (s *Sampler) generate(w walker, opts ...GenerateOption) ([]string, error) {
	start, options, err := s.prepare(w, opts)
	if err != nil {
		return nil, err
	}

	sequence := make([]string, 1, min(options.maxLength, 256))
	sequence[0] = start
	current := start

	for len(sequence) < options.maxLength {
		next, ok := w.step(s.rng, current)
		if !ok { // Dead end in chain
			s.logger.Debug("Generation terminated due to dead-end",
				slog.String("mode", w.mode()),
				slog.String("last_token", current),
				slog.Int("generated_length", len(sequence)),
			)
			return sequence, nil
		}
		sequence = append(sequence, next)
		current = next
	}

	s.logger.Debug("Generation terminated by reaching maxLength",
		slog.String("mode", w.mode()),
		slog.Int("max_length", options.maxLength),
	)
	return sequence, nil
}

// prepare applies the options, validates them against the network, and picks
// the start token.
func (s *Sampler) prepare(w walker, opts []GenerateOption) (string, *generateOptions, error) {
	options := &generateOptions{
		maxLength: DefaultMaxLength,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.maxLength < 1 {
		return "", nil, fmt.Errorf("%w: max length %d is below 1", ErrInvalidInput, options.maxLength)
	}

	keys := w.keys()
	if len(keys) == 0 {
		return "", nil, ErrEmptyNetwork
	}

	if options.hasStart {
		if !w.has(options.startToken) {
			return "", nil, fmt.Errorf("%w: start token %q has no recorded successors", ErrInvalidInput, options.startToken)
		}
		return options.startToken, options, nil
	}
	return keys[s.rng.IntN(len(keys))], options, nil
}
