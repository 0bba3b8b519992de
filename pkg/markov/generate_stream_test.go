package markov

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"
)

func TestGenerateStream(t *testing.T) {
	counts := mustBuild(t, "one fish two fish red fish blue fish")
	probs, _ := ToProbabilityNetwork(counts)
	ctx := context.Background()

	t.Run("Weighted stream follows recorded links", func(t *testing.T) {
		stream, err := newTestSampler().StreamWeighted(ctx, probs, WithStartToken("one"), WithMaxLength(6))
		if err != nil {
			t.Fatalf("StreamWeighted failed: %v", err)
		}

		var tokens []string
		for token := range stream {
			tokens = append(tokens, token)
		}

		if len(tokens) < 1 || len(tokens) > 6 || tokens[0] != "one" {
			t.Fatalf("unexpected stream output %v", tokens)
		}
		for i := 1; i < len(tokens); i++ {
			if counts.Count(tokens[i-1], tokens[i]) == 0 {
				t.Errorf("step %d: %q -> %q was never observed", i, tokens[i-1], tokens[i])
			}
		}
	})

	t.Run("Stream matches Generate for the same seed", func(t *testing.T) {
		want, err := NewSampler(rand.NewPCG(3, 4)).GenerateUniform(counts, WithMaxLength(12))
		if err != nil {
			t.Fatalf("GenerateUniform failed: %v", err)
		}
		stream, err := NewSampler(rand.NewPCG(3, 4)).StreamUniform(ctx, counts, WithMaxLength(12))
		if err != nil {
			t.Fatalf("StreamUniform failed: %v", err)
		}
		var got []string
		for token := range stream {
			got = append(got, token)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("stream produced %v, generate produced %v", got, want)
		}
	})

	t.Run("Validation errors are synchronous", func(t *testing.T) {
		_, err := newTestSampler().StreamUniform(ctx, mustBuild(t, "x"))
		if !errors.Is(err, ErrEmptyNetwork) {
			t.Errorf("expected ErrEmptyNetwork, got %v", err)
		}
		_, err = newTestSampler().StreamWeighted(ctx, probs, WithMaxLength(0))
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Stream cancellation", func(t *testing.T) {
		// A self loop never dead-ends, so only cancellation can stop it early.
		loop := mustBuild(t, "la la")
		ctxCancel, cancel := context.WithCancel(ctx)
		defer cancel()

		streamCancel, err := newTestSampler().StreamUniform(ctxCancel, loop, WithMaxLength(1_000_000))
		if err != nil {
			t.Fatalf("StreamUniform failed: %v", err)
		}

		// Read one token, then cancel
		<-streamCancel
		cancel()

		// The channel should now close quickly; at most one in-flight token may still arrive.
		timeout := time.After(time.Second)
		for {
			select {
			case _, ok := <-streamCancel:
				if !ok {
					return
				}
			case <-timeout:
				t.Fatal("timed out waiting for stream channel to close after cancellation")
			}
		}
	})
}
