package markov

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestToProbabilityNetwork(t *testing.T) {
	counts := NewCountNetwork()
	_ = counts.Add("a", "x", 3)
	_ = counts.Add("a", "y", 1)
	_ = counts.Add("a", "z", 1)
	_ = counts.Add("b", "a", 4)

	probs, err := ToProbabilityNetwork(counts)
	if err != nil {
		t.Fatalf("ToProbabilityNetwork failed: %v", err)
	}

	// Ascending by count, ties keep first-seen order (y before z).
	want := []Cumulative{{"y", 0.2}, {"z", 0.4}, {"x", 1.0}}
	got := probs.Successors("a")
	if len(got) != len(want) {
		t.Fatalf("expected %d successors, got %+v", len(want), got)
	}
	for i := range want {
		if got[i].Token != want[i].Token || math.Abs(got[i].P-want[i].P) > 1e-9 {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if got := probs.Successors("b"); !reflect.DeepEqual(got, []Cumulative{{"a", 1.0}}) {
		t.Errorf("unexpected successors of b: %+v", got)
	}
	if !reflect.DeepEqual(probs.Tokens(), counts.Tokens()) {
		t.Errorf("expected predecessors %v, got %v", counts.Tokens(), probs.Tokens())
	}
}

func TestProbabilityNetworkIsCumulative(t *testing.T) {
	counts := mustBuild(t, "the cat sat on the mat and the cat ran to the mat and the dog sat")
	probs, err := counts.Probabilities()
	if err != nil {
		t.Fatalf("Probabilities failed: %v", err)
	}

	for _, prev := range counts.Tokens() {
		entries := probs.Successors(prev)
		if len(entries) == 0 {
			t.Fatalf("predecessor %q lost its successors", prev)
		}
		last := 0.0
		for _, e := range entries {
			if e.P <= 0 || e.P > 1 {
				t.Errorf("%q -> %q: cumulative %v outside (0, 1]", prev, e.Token, e.P)
			}
			if e.P < last {
				t.Errorf("%q: cumulative values decrease at %q (%v < %v)", prev, e.Token, e.P, last)
			}
			last = e.P
		}
		if math.Abs(last-1.0) > 1e-9 {
			t.Errorf("%q: final cumulative value is %v, want 1.0", prev, last)
		}
	}
}

func TestToProbabilityNetworkDoesNotMutate(t *testing.T) {
	counts := mustBuild(t, "a b a b a c a d d a")
	before := make(map[string][]Transition)
	for _, prev := range counts.Tokens() {
		before[prev] = counts.Successors(prev)
	}

	if _, err := ToProbabilityNetwork(counts); err != nil {
		t.Fatalf("ToProbabilityNetwork failed: %v", err)
	}

	for _, prev := range counts.Tokens() {
		if !reflect.DeepEqual(before[prev], counts.Successors(prev)) {
			t.Errorf("successors of %q changed: before %+v, after %+v", prev, before[prev], counts.Successors(prev))
		}
	}

	// Later ingestion into the counts must not leak into an earlier conversion.
	probs, _ := ToProbabilityNetwork(counts)
	_ = counts.Add("a", "new", 10)
	for _, e := range probs.Successors("a") {
		if e.Token == "new" {
			t.Error("probability network shares state with its count network")
		}
	}
}

func TestCumulativeRowZeroTotal(t *testing.T) {
	_, err := cumulativeRow([]Transition{{"a", 0}})
	if !errors.Is(err, ErrZeroTotal) {
		t.Errorf("expected ErrZeroTotal, got %v", err)
	}
}

func TestToProbabilityNetworkEmpty(t *testing.T) {
	for name, counts := range map[string]*CountNetwork{
		"nil":   nil,
		"empty": mustBuild(t, "x"),
	} {
		t.Run(name, func(t *testing.T) {
			probs, err := ToProbabilityNetwork(counts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if probs.Len() != 0 {
				t.Errorf("expected an empty network, got %d predecessors", probs.Len())
			}
		})
	}
}
