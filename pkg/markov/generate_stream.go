package markov

import (
	"context"
	"log/slog"
)

// StreamUniform performs the same walk as GenerateUniform but returns a
// read-only channel that receives tokens one at a time. Invalid options or an
// empty network are reported immediately as an error. The channel is closed once
// generation is complete or the context is cancelled.
//
// The Sampler is used by the streaming goroutine until the channel is closed and
// must not be used for anything else in the meantime.
func (s *Sampler) StreamUniform(ctx context.Context, network *CountNetwork, opts ...GenerateOption) (<-chan string, error) {
	var w walker = uniformWalk{n: network}
	if network == nil {
		w = uniformWalk{n: NewCountNetwork()}
	}
	return s.stream(ctx, w, opts...)
}

// StreamWeighted is the streaming counterpart of GenerateWeighted.
func (s *Sampler) StreamWeighted(ctx context.Context, network *ProbabilityNetwork, opts ...GenerateOption) (<-chan string, error) {
	var w walker = weightedWalk{p: network}
	if network == nil {
		w = weightedWalk{p: &ProbabilityNetwork{}}
	}
	return s.stream(ctx, w, opts...)
}

// stream contains the core logic for streaming generation.
func (s *Sampler) stream(ctx context.Context, w walker, opts ...GenerateOption) (<-chan string, error) {
	start, options, err := s.prepare(w, opts)
	if err != nil {
		return nil, err
	}

	tokenChan := make(chan string)

	go func() {
		defer close(tokenChan)

		select {
		case <-ctx.Done():
			return
		case tokenChan <- start:
		}

		current := start
		for generated := 1; generated < options.maxLength; generated++ {
			select {
			case <-ctx.Done():
				s.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return
			default:
				// continue
			}

			next, ok := w.step(s.rng, current)
			if !ok {
				s.logger.DebugContext(ctx, "Generation stream terminated due to dead-end",
					slog.String("mode", w.mode()),
					slog.String("last_token", current),
					slog.Int("generated_length", generated),
				)
				return
			}

			select {
			case <-ctx.Done():
				return
			case tokenChan <- next:
			}
			current = next
		}
	}()

	return tokenChan, nil
}
