package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/CTAG07/markovnet/pkg/corpus"
	"github.com/CTAG07/markovnet/pkg/markov"
	"github.com/natefinch/atomic"
)

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// isFlagSet reports whether the named flag was given on the command line.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// modelOrCreate returns the named model, inserting it first if it does not exist.
func modelOrCreate(ctx context.Context, store *markov.Store, name string) (markov.ModelInfo, error) {
	model, err := store.GetModelInfo(ctx, name)
	if err == nil {
		return model, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return markov.ModelInfo{}, err
	}
	if err = store.InsertModel(ctx, markov.ModelInfo{Name: name}); err != nil {
		return markov.ModelInfo{}, err
	}
	return store.GetModelInfo(ctx, name)
}

func lookupModel(ctx context.Context, store *markov.Store, name string) (markov.ModelInfo, error) {
	if name == "" {
		return markov.ModelInfo{}, errors.New("-model is required")
	}
	model, err := store.GetModelInfo(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return markov.ModelInfo{}, fmt.Errorf("model %q not found", name)
	}
	return model, err
}

func (a *app) cmdTrain(ctx context.Context, args []string) error {
	fs := a.newFlagSet("train")
	modelName := fs.String("model", "", "model to train, created if missing")
	corpusPath := fs.String("corpus", "", "path of the training text")
	encoding := fs.String("encoding", a.config.Corpus.Encoding, "corpus encoding: utf-8, utf-16, utf-16le or utf-16be")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelName == "" || *corpusPath == "" {
		return errors.New("train requires -model and -corpus")
	}

	text, err := corpus.Open(*corpusPath, *encoding)
	if err != nil {
		return err
	}
	defer text.Close()

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	model, err := modelOrCreate(ctx, store, *modelName)
	if err != nil {
		return fmt.Errorf("could not get model %q: %w", *modelName, err)
	}
	if err = store.Train(ctx, model, text); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "trained model %q from %s\n", model.Name, *corpusPath)
	return nil
}

func (a *app) cmdGenerate(ctx context.Context, args []string) error {
	gen := a.config.Generation
	fs := a.newFlagSet("generate")
	modelName := fs.String("model", "", "stored model to generate from")
	corpusPath := fs.String("corpus", "", "build the network from this file instead of the database")
	encoding := fs.String("encoding", a.config.Corpus.Encoding, "corpus encoding, used with -corpus")
	mode := fs.String("mode", gen.Mode, "uniform or weighted")
	start := fs.String("start", "", "first token, drawn at random when not given")
	length := fs.Int("length", gen.MaxLength, "maximum number of tokens")
	seed := fs.Uint64("seed", gen.Seed, "random seed, 0 for a random one")
	count := fs.Int("n", 1, "number of chains to generate")
	stream := fs.Bool("stream", false, "print tokens as they are generated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*modelName == "") == (*corpusPath == "") {
		return errors.New("generate requires exactly one of -model or -corpus")
	}
	if err := validateMode(*mode); err != nil {
		return err
	}

	tokenizer := a.config.Corpus.Tokenizer()
	network, err := a.loadNetwork(ctx, *modelName, *corpusPath, *encoding, tokenizer)
	if err != nil {
		return err
	}

	opts := []markov.GenerateOption{markov.WithMaxLength(*length)}
	if isFlagSet(fs, "start") {
		opts = append(opts, markov.WithStartToken(*start))
	}

	sampler := newSampler(*seed)
	sampler.SetLogger(a.logger)
	for i := 0; i < *count; i++ {
		if *stream {
			if err = a.printStream(ctx, sampler, network, *mode, tokenizer, opts); err != nil {
				return err
			}
			continue
		}
		tokens, err := generateTokens(sampler, network, *mode, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, markov.JoinTokens(tokenizer, tokens))
	}
	return nil
}

func (a *app) printStream(ctx context.Context, sampler *markov.Sampler, network *markov.CountNetwork, mode string, tokenizer markov.Tokenizer, opts []markov.GenerateOption) error {
	tokens, err := streamTokens(ctx, sampler, network, mode, opts...)
	if err != nil {
		return err
	}
	prev := ""
	first := true
	for token := range tokens {
		if !first {
			fmt.Fprint(a.stdout, tokenizer.Separator(prev, token))
		}
		fmt.Fprint(a.stdout, token)
		prev, first = token, false
	}
	fmt.Fprintln(a.stdout)
	return ctx.Err()
}

// loadNetwork reads a stored model, or builds a network straight from a corpus file.
func (a *app) loadNetwork(ctx context.Context, modelName, corpusPath, encoding string, tokenizer markov.Tokenizer) (*markov.CountNetwork, error) {
	if corpusPath != "" {
		text, err := corpus.Open(corpusPath, encoding)
		if err != nil {
			return nil, err
		}
		defer text.Close()
		tokens, err := markov.Tokenize(tokenizer, text)
		if err != nil {
			return nil, err
		}
		return markov.Build(tokens)
	}

	store, closeStore, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer closeStore()
	model, err := lookupModel(ctx, store, modelName)
	if err != nil {
		return nil, err
	}
	return store.LoadNetwork(ctx, model)
}

func (a *app) cmdModels(ctx context.Context, args []string) error {
	fs := a.newFlagSet("models")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}
	return a.printModelTable(stats)
}

func (a *app) printModelTable(stats *markov.DBStats) error {
	models := stats.Models
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPREDECESSORS\tCHAINS\tFREQUENCY")
	for _, model := range models {
		s := stats.Stats[model.Id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", model.Name, s.Predecessors, s.TotalChains, s.TotalFrequency)
	}
	return tw.Flush()
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	fs := a.newFlagSet("remove")
	modelName := fs.String("model", "", "model to delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	model, err := lookupModel(ctx, store, *modelName)
	if err != nil {
		return err
	}
	if err = store.RemoveModel(ctx, model); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "removed model %q\n", model.Name)
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	fs := a.newFlagSet("export")
	modelName := fs.String("model", "", "model to export")
	out := fs.String("out", "", "output file, stdout when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	model, err := lookupModel(ctx, store, *modelName)
	if err != nil {
		return err
	}
	if *out == "" {
		return store.ExportModel(ctx, model, a.stdout)
	}

	var buf bytes.Buffer
	if err = store.ExportModel(ctx, model, &buf); err != nil {
		return err
	}
	if err = atomic.WriteFile(*out, &buf); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	fmt.Fprintf(a.stdout, "exported model %q to %s\n", model.Name, *out)
	return nil
}

func (a *app) cmdImport(ctx context.Context, args []string) error {
	fs := a.newFlagSet("import")
	in := fs.String("in", "", "JSON file produced by export")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("import requires -in")
	}
	file, err := os.Open(*in)
	if err != nil {
		return fmt.Errorf("could not open import file: %w", err)
	}
	defer file.Close()

	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err = store.ImportModel(ctx, file); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "imported %s\n", *in)
	return nil
}

func (a *app) cmdStats(ctx context.Context, args []string) error {
	fs := a.newFlagSet("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "models: %d\nvocabulary: %d\n\n", len(stats.Models), stats.VocabSize)
	return a.printModelTable(stats)
}

func (a *app) cmdPrune(ctx context.Context, args []string) error {
	fs := a.newFlagSet("prune")
	modelName := fs.String("model", "", "model whose links to prune")
	vocab := fs.Bool("vocab", false, "prune the shared vocabulary instead of one model")
	minFreq := fs.Int("min", 1, "links at or below this frequency are dropped; with -vocab, words seen fewer times are dropped")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if *vocab {
		if err = store.VocabularyPrune(ctx, *minFreq); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "pruned vocabulary below frequency %d\n", *minFreq)
		return nil
	}

	model, err := lookupModel(ctx, store, *modelName)
	if err != nil {
		return err
	}
	if err = store.PruneModel(ctx, model, *minFreq); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "pruned model %q at frequency %d\n", model.Name, *minFreq)
	return nil
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := a.newFlagSet("serve")
	addr := fs.String("addr", a.config.Server.ApiAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	return serve(ctx, *addr, a.db, store, a.config, a.logger)
}
