package markov

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// SetupSchema initializes the necessary tables in the provided database. This
// function should be called once on a new database before a Store is created.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaVocab = `
CREATE TABLE IF NOT EXISTS markov_vocabulary (
    token_id INTEGER PRIMARY KEY,
    token_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    model_id INTEGER NOT NULL,
    prev_token_id INTEGER NOT NULL,
    next_token_id INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    link_order INTEGER NOT NULL,
    PRIMARY KEY (model_id, prev_token_id, next_token_id)
);
`
		indexChainOrder = `CREATE INDEX IF NOT EXISTS idx_markov_chains_order ON markov_chains (model_id, link_order);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaVocab); err != nil {
		return fmt.Errorf("could not create vocabulary schema: %w", err)
	}

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaChains); err != nil {
		return fmt.Errorf("could not create chains schema: %w", err)
	}

	if _, err = tx.Exec(indexChainOrder); err != nil {
		return fmt.Errorf("could not create chain order index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store persists CountNetworks in a SQLite database under model names. It holds
// the database connection, a tokenizer used for training from raw text, and
// prepared SQL statements for efficient database interaction.
// All methods are safe for concurrent use.
type Store struct {
	db                *sql.DB
	tokenizer         Tokenizer
	stmtGetModelInfo  *sql.Stmt
	stmtGetModels     *sql.Stmt
	stmtAddModel      *sql.Stmt
	stmtPruneModel    *sql.Stmt
	stmtModelChains   *sql.Stmt
	stmtModelStarters *sql.Stmt
	stmtModelFreq     *sql.Stmt
	stmtGetTokenID    *sql.Stmt
	stmtGetTokenText  *sql.Stmt
	stmtGetVocabLen   *sql.Stmt
	stmtInsertVocab   *sql.Stmt
	stmtLoadChains    *sql.Stmt
	logger            *slog.Logger
}

// NewStore creates and returns a new Store. It takes a database connection on
// which SetupSchema has been run, and a Tokenizer implementation. It pre-compiles
// all necessary SQL statements, returning an error if any preparation fails.
func NewStore(db *sql.DB, tokenizer Tokenizer) (*Store, error) {
	s := &Store{
		db:        db,
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtGetModelInfo, `SELECT model_id FROM markov_models WHERE model_name = ?;`},
		{&s.stmtGetModels, `SELECT model_id, model_name FROM markov_models ORDER BY model_id;`},
		{&s.stmtAddModel, `INSERT INTO markov_models (model_name) VALUES (?);`},
		{&s.stmtPruneModel, `DELETE FROM markov_chains WHERE model_id = ? AND frequency <= ?;`},
		{&s.stmtModelChains, `SELECT COUNT(*) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtModelStarters, `SELECT COUNT(DISTINCT prev_token_id) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtModelFreq, `SELECT coalesce(SUM(frequency), 0) FROM markov_chains WHERE model_id = ?;`},
		{&s.stmtGetTokenID, `SELECT token_id FROM markov_vocabulary WHERE token_text = ?;`},
		{&s.stmtGetTokenText, `SELECT token_text FROM markov_vocabulary WHERE token_id = ?;`},
		{&s.stmtGetVocabLen, `SELECT COUNT(*) FROM markov_vocabulary;`},
		{&s.stmtInsertVocab, `INSERT INTO markov_vocabulary (token_text) VALUES (?) ON CONFLICT(token_text) DO UPDATE SET token_text=excluded.token_text RETURNING token_id;`},
		{&s.stmtLoadChains, `
SELECT c.prev_token_id, p.token_text, c.next_token_id, n.token_text, c.frequency, c.link_order
FROM markov_chains c
JOIN markov_vocabulary p ON p.token_id = c.prev_token_id
JOIN markov_vocabulary n ON n.token_id = c.next_token_id
WHERE c.model_id = ?
ORDER BY c.link_order;`},
	}

	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("could not prepare statement %q: %w", st.query, err)
		}
		*st.dst = stmt
	}

	return s, nil
}

// Close releases all prepared SQL statements held by the Store. It should be
// called when the Store is no longer needed to free up database resources.
// The database connection itself is left open.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtGetModelInfo,
		s.stmtGetModels,
		s.stmtAddModel,
		s.stmtPruneModel,
		s.stmtModelChains,
		s.stmtModelStarters,
		s.stmtModelFreq,
		s.stmtGetTokenID,
		s.stmtGetTokenText,
		s.stmtGetVocabLen,
		s.stmtInsertVocab,
		s.stmtLoadChains,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
// Providing a `log/slog.Logger` will enable logging for training, import,
// export, and other operations.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Tokenizer returns the tokenizer the Store trains with.
func (s *Store) Tokenizer() Tokenizer {
	return s.tokenizer
}
