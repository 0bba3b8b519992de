package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/CTAG07/markovnet/pkg/markov"
)

// newSampler returns a sampler seeded with seed, or a randomly seeded one for zero.
func newSampler(seed uint64) *markov.Sampler {
	if seed == 0 {
		return markov.NewSampler(nil)
	}
	return markov.NewSampler(rand.NewPCG(seed, seed))
}

// generateTokens samples one chain from network using the named mode.
func generateTokens(sampler *markov.Sampler, network *markov.CountNetwork, mode string, opts ...markov.GenerateOption) ([]string, error) {
	switch mode {
	case modeUniform:
		return sampler.GenerateUniform(network, opts...)
	case modeWeighted:
		probs, err := network.Probabilities()
		if err != nil {
			return nil, err
		}
		return sampler.GenerateWeighted(probs, opts...)
	default:
		return nil, fmt.Errorf("%w: %v", markov.ErrInvalidInput, validateMode(mode))
	}
}

// streamTokens is the streaming counterpart of generateTokens.
func streamTokens(ctx context.Context, sampler *markov.Sampler, network *markov.CountNetwork, mode string, opts ...markov.GenerateOption) (<-chan string, error) {
	switch mode {
	case modeUniform:
		return sampler.StreamUniform(ctx, network, opts...)
	case modeWeighted:
		probs, err := network.Probabilities()
		if err != nil {
			return nil, err
		}
		return sampler.StreamWeighted(ctx, probs, opts...)
	default:
		return nil, fmt.Errorf("%w: %v", markov.ErrInvalidInput, validateMode(mode))
	}
}
