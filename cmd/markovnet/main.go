package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/markovnet/pkg/markov"
)

const usage = `Usage: markovnet [global flags] <command> [flags]

Commands:
  train     train a model from a corpus file
  generate  generate text from a model or straight from a corpus file
  models    list models
  remove    delete a model
  export    write a model as JSON
  import    merge a JSON model into the database
  stats     show database statistics
  prune     drop rare links from a model, or rare words from the vocabulary
  serve     run the HTTP API

Global flags:
`

// app carries what every command needs.
type app struct {
	config *Config
	// db is set by openStore for commands that need more than the store.
	db     *sql.DB
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run parses the global flags, loads the config and dispatches to a command.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("markovnet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./markovnet.json", "path to the JSON config file, created with defaults if missing")
	dbPath := fs.String("db", "", "database DSN, overrides database_path")
	logLevel := fs.String("log-level", "", "debug, info, warn or error, overrides log_level")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("no command given")
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *dbPath != "" {
		config.Server.DatabasePath = *dbPath
	}
	if *logLevel != "" {
		config.Server.LogLevel = *logLevel
	}

	a := &app{
		config: config,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)})),
		stdout: stdout,
		stderr: stderr,
	}

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "train":
		return a.cmdTrain(ctx, rest)
	case "generate":
		return a.cmdGenerate(ctx, rest)
	case "models":
		return a.cmdModels(ctx, rest)
	case "remove":
		return a.cmdRemove(ctx, rest)
	case "export":
		return a.cmdExport(ctx, rest)
	case "import":
		return a.cmdImport(ctx, rest)
	case "stats":
		return a.cmdStats(ctx, rest)
	case "prune":
		return a.cmdPrune(ctx, rest)
	case "serve":
		return a.cmdServe(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// openStore opens the configured database, makes sure the schema exists and
// prepares a Store on it. The returned func closes both.
func (a *app) openStore() (*markov.Store, func(), error) {
	dsn := a.config.Server.DatabasePath
	if dir := databaseDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := initDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = markov.SetupSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup markov schema: %w", err)
	}
	if err = setupAuthSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to setup auth schema: %w", err)
	}
	store, err := markov.NewStore(db, a.config.Corpus.Tokenizer())
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("error creating markov store: %w", err)
	}
	store.SetLogger(a.logger)
	a.db = db

	closeFn := func() {
		store.Close()
		if err := db.Close(); err != nil {
			a.logger.Error("Failed to close database", "error", err)
		}
	}
	return store, closeFn, nil
}

// databaseDir returns the directory holding the database file named by dsn,
// or "" when there is nothing to create.
func databaseDir(dsn string) string {
	path, _, _ := strings.Cut(dsn, "?")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return ""
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return ""
	}
	return dir
}
