/*
Package markov builds first-order Markov chains over word tokens and walks
them to generate new token sequences.

Build counts how often each token is directly followed by each other token,
producing a CountNetwork. ToProbabilityNetwork turns those counts into
cumulative distributions. A Sampler then walks either network: GenerateUniform
treats every recorded successor as equally likely, while GenerateWeighted picks
successors in proportion to how often they were observed. Both stop early at
tokens that were never followed by anything.

	tokens, _ := markov.Tokenize(markov.NewDefaultTokenizer(), corpus)
	counts, _ := markov.Build(tokens)
	probs, _ := markov.ToProbabilityNetwork(counts)
	sampler := markov.NewSampler(rand.NewPCG(1, 2))
	story, _ := sampler.GenerateWeighted(probs, markov.WithMaxLength(50))

Networks can be persisted by model name in SQLite through a Store, which also
supports JSON export and import, statistics, and pruning.
*/
package markov
