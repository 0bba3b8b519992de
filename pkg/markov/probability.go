package markov

import (
	"cmp"
	"fmt"
	"slices"
)

// Cumulative is a successor entry in a ProbabilityNetwork. P is the cumulative
// fraction of the predecessor's total count up to and including this entry.
type Cumulative struct {
	Token string
	P     float64
}

// ProbabilityNetwork is a cumulative-probability view of a CountNetwork, used
// for frequency-weighted sampling. For every predecessor the successors are
// ordered by ascending count (ties keep first-seen order) and their P values are
// non-decreasing, ending at exactly 1.0.
//
// A ProbabilityNetwork shares no memory with the CountNetwork it was derived
// from and exposes no way to modify it.
type ProbabilityNetwork struct {
	tokens []string
	rows   map[string][]Cumulative
}

// ToProbabilityNetwork converts counts into a ProbabilityNetwork. The input is
// not modified. A nil network converts to an empty one.
func ToProbabilityNetwork(counts *CountNetwork) (*ProbabilityNetwork, error) {
	p := &ProbabilityNetwork{rows: make(map[string][]Cumulative, counts.Len())}
	if counts == nil {
		return p, nil
	}

	for _, token := range counts.tokens {
		row := counts.rows[token]
		entries, err := cumulativeRow(row.next)
		if err != nil {
			return nil, fmt.Errorf("converting successors of %q: %w", token, err)
		}
		p.tokens = append(p.tokens, token)
		p.rows[token] = entries
	}
	return p, nil
}

// Probabilities is shorthand for ToProbabilityNetwork(n).
func (n *CountNetwork) Probabilities() (*ProbabilityNetwork, error) {
	return ToProbabilityNetwork(n)
}

// cumulativeRow sorts a copy of the transitions by ascending count and turns the
// running sums into fractions of the total. Dividing the final running sum by
// the total gives exactly 1.0, since both are the same integer.
func cumulativeRow(transitions []Transition) ([]Cumulative, error) {
	sorted := slices.Clone(transitions)
	slices.SortStableFunc(sorted, func(a, b Transition) int {
		return cmp.Compare(a.Count, b.Count)
	})

	total := 0
	for _, t := range sorted {
		total += t.Count
	}
	if total == 0 {
		return nil, ErrZeroTotal
	}

	entries := make([]Cumulative, len(sorted))
	running := 0
	for i, t := range sorted {
		running += t.Count
		entries[i] = Cumulative{Token: t.Token, P: float64(running) / float64(total)}
	}
	return entries, nil
}

// Len returns the number of predecessor tokens in the network.
func (p *ProbabilityNetwork) Len() int {
	if p == nil {
		return 0
	}
	return len(p.tokens)
}

// Tokens returns the predecessor tokens in first-seen order.
func (p *ProbabilityNetwork) Tokens() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.tokens...)
}

// Has reports whether token has at least one successor.
func (p *ProbabilityNetwork) Has(token string) bool {
	if p == nil {
		return false
	}
	_, ok := p.rows[token]
	return ok
}

// Successors returns a copy of the cumulative successor list of token, in
// sampling order, or nil if the token is a dead end.
func (p *ProbabilityNetwork) Successors(token string) []Cumulative {
	if p == nil {
		return nil
	}
	return slices.Clone(p.rows[token])
}
