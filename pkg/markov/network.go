package markov

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when an operation receives arguments it cannot
	// work with, such as an empty token sequence, a max length below 1, or a
	// start token that has no recorded successors.
	ErrInvalidInput = errors.New("markov: invalid input")
	// ErrEmptyNetwork is returned when sampling is requested from a network that
	// has no predecessor entries, so no start token can be chosen.
	ErrEmptyNetwork = errors.New("markov: empty network")
	// ErrZeroTotal is returned by ToProbabilityNetwork when a predecessor's
	// successor counts sum to zero.
	ErrZeroTotal = errors.New("markov: predecessor has zero total count")
)

// Transition is one observed successor of a token, along with the number of
// times it directly followed that token in the training data.
type Transition struct {
	Token string
	Count int
}

// countRow holds the successors of a single predecessor in first-seen order.
type countRow struct {
	next  []Transition
	index map[string]int // successor token -> position in next
	total int
}

// CountNetwork is a first-order adjacency count structure: for every token that
// was followed by at least one other token, it records each successor and how
// often it occurred. Both predecessors and successors keep the order in which
// they were first seen, which makes the derived ProbabilityNetwork reproducible.
//
// A CountNetwork only grows. Counts are never decremented, and every
// predecessor always has at least one successor with a count of one or more.
// The zero value is an empty network ready for use.
type CountNetwork struct {
	tokens []string
	rows   map[string]*countRow
}

// NewCountNetwork returns an empty network.
func NewCountNetwork() *CountNetwork {
	return &CountNetwork{rows: make(map[string]*countRow)}
}

// Build counts every adjacent pair of tokens and returns the resulting network.
// A sequence with a single token yields an empty network, which is valid.
// An empty sequence is rejected with ErrInvalidInput.
func Build(tokens []string) (*CountNetwork, error) {
	n := NewCountNetwork()
	if err := n.Ingest(tokens); err != nil {
		return nil, err
	}
	return n, nil
}

// Ingest adds the adjacent pairs of another token sequence to the network.
// The last token of any previously ingested sequence is not linked to the first
// token of this one.
func (n *CountNetwork) Ingest(tokens []string) error {
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty token sequence", ErrInvalidInput)
	}
	for i := 0; i < len(tokens)-1; i++ {
		n.add(tokens[i], tokens[i+1], 1)
	}
	return nil
}

// Add records count observations of next following prev. It is used to merge
// counts that were computed elsewhere, e.g. when loading a stored model.
// The count must be at least 1.
func (n *CountNetwork) Add(prev, next string, count int) error {
	if count < 1 {
		return fmt.Errorf("%w: count %d for %q -> %q must be positive", ErrInvalidInput, count, prev, next)
	}
	n.add(prev, next, count)
	return nil
}

func (n *CountNetwork) add(prev, next string, count int) {
	if n.rows == nil {
		n.rows = make(map[string]*countRow)
	}
	row, ok := n.rows[prev]
	if !ok {
		row = &countRow{index: make(map[string]int)}
		n.rows[prev] = row
		n.tokens = append(n.tokens, prev)
	}
	if i, ok := row.index[next]; ok {
		row.next[i].Count += count
	} else {
		row.index[next] = len(row.next)
		row.next = append(row.next, Transition{Token: next, Count: count})
	}
	row.total += count
}

// Len returns the number of predecessor tokens in the network.
func (n *CountNetwork) Len() int {
	if n == nil {
		return 0
	}
	return len(n.tokens)
}

// Tokens returns the predecessor tokens in first-seen order.
func (n *CountNetwork) Tokens() []string {
	if n == nil {
		return nil
	}
	return append([]string(nil), n.tokens...)
}

// Has reports whether token has at least one recorded successor.
func (n *CountNetwork) Has(token string) bool {
	if n == nil {
		return false
	}
	_, ok := n.rows[token]
	return ok
}

// Successors returns a copy of the successors of token in first-seen order,
// or nil if the token is a dead end.
func (n *CountNetwork) Successors(token string) []Transition {
	if n == nil {
		return nil
	}
	row, ok := n.rows[token]
	if !ok {
		return nil
	}
	return append([]Transition(nil), row.next...)
}

// Count returns how many times next was observed directly after prev.
func (n *CountNetwork) Count(prev, next string) int {
	if n == nil {
		return 0
	}
	row, ok := n.rows[prev]
	if !ok {
		return 0
	}
	if i, ok := row.index[next]; ok {
		return row.next[i].Count
	}
	return 0
}

// Total returns the sum of all successor counts recorded for token.
func (n *CountNetwork) Total(token string) int {
	if n == nil {
		return 0
	}
	if row, ok := n.rows[token]; ok {
		return row.total
	}
	return 0
}

// successorAt returns the i-th successor of token without copying.
func (n *CountNetwork) successorAt(token string, i int) string {
	return n.rows[token].next[i].Token
}

// successorCount returns the number of distinct successors of token.
func (n *CountNetwork) successorCount(token string) int {
	if row, ok := n.rows[token]; ok {
		return len(row.next)
	}
	return 0
}
