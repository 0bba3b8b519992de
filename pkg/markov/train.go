package markov

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
)

// Train tokenizes a stream of text from an io.Reader, builds its count network,
// and merges it into the specified model with SaveNetwork. The whole corpus is
// treated as one token sequence.
func (s *Store) Train(ctx context.Context, model ModelInfo, data io.Reader) error {
	tokens, err := Tokenize(s.tokenizer, data)
	if err != nil {
		return err
	}

	network, err := Build(tokens)
	if err != nil {
		return fmt.Errorf("could not build network for model '%s': %w", model.Name, err)
	}

	if err = s.SaveNetwork(ctx, model, network); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Training completed",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("tokens_processed", len(tokens)),
	)
	return nil
}

// SaveNetwork merges a count network into the specified model. Counts of links
// the model already has are added to, and new links are appended after the
// existing ones so that first-seen order survives a later LoadNetwork. The
// entire operation is performed within a single database transaction.
func (s *Store) SaveNetwork(ctx context.Context, model ModelInfo, network *CountNetwork) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	nextOrder, err := maxLinkOrder(ctx, tx, model.Id)
	if err != nil {
		return err
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)
	stmtInsertChain, err := tx.PrepareContext(ctx, `
		INSERT INTO markov_chains (model_id, prev_token_id, next_token_id, frequency, link_order) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_id, prev_token_id, next_token_id) DO UPDATE SET frequency = frequency + excluded.frequency;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChain)

	vocabCache := make(map[string]int)
	tokenID := func(text string) (int, error) {
		if id, ok := vocabCache[text]; ok {
			return id, nil
		}
		var id int
		if err := stmtInsertVocab.QueryRowContext(ctx, text).Scan(&id); err != nil {
			return 0, fmt.Errorf("sql insert vocabulary error for token '%s': %w", text, err)
		}
		vocabCache[text] = id
		return id, nil
	}

	var links int
	for _, prev := range network.Tokens() {
		prevID, err := tokenID(prev)
		if err != nil {
			return err
		}
		for _, t := range network.rows[prev].next {
			nextID, err := tokenID(t.Token)
			if err != nil {
				return err
			}
			nextOrder++
			if _, err = stmtInsertChain.ExecContext(ctx, model.Id, prevID, nextID, t.Count, nextOrder); err != nil {
				return fmt.Errorf("failed to insert chain link (%d -> %d): %w", prevID, nextID, err)
			}
			links++
		}
	}

	s.logger.InfoContext(ctx, "Network saved",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("links_merged", links),
		slog.Int("vocab_items_touched", len(vocabCache)),
	)

	return tx.Commit()
}

// maxLinkOrder returns the highest link_order stored for a model, or 0.
func maxLinkOrder(ctx context.Context, tx *sql.Tx, modelID int) (int, error) {
	var order int
	err := tx.QueryRowContext(ctx, "SELECT coalesce(MAX(link_order), 0) FROM markov_chains WHERE model_id = ?", modelID).Scan(&order)
	if err != nil {
		return 0, fmt.Errorf("could not read link order for model %d: %w", modelID, err)
	}
	return order, nil
}

// LoadNetwork reads every link of a model and rebuilds its count network, in the
// order the links were first saved. A model without links yields an empty network.
func (s *Store) LoadNetwork(ctx context.Context, model ModelInfo) (*CountNetwork, error) {
	rows, err := s.stmtLoadChains.QueryContext(ctx, model.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query chains for model %d: %w", model.Id, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	network := NewCountNetwork()
	for rows.Next() {
		var link chainRow
		if err = link.scan(rows); err != nil {
			return nil, err
		}
		if err = network.Add(link.prev, link.next, link.frequency); err != nil {
			return nil, fmt.Errorf("corrupt chain in model %d: %w", model.Id, err)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Network loaded",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("predecessors", network.Len()),
	)
	return network, nil
}

// chainRow is one row of the load chains statement.
type chainRow struct {
	prevID, nextID int
	prev, next     string
	frequency      int
	order          int
}

func (c *chainRow) scan(rows *sql.Rows) error {
	return rows.Scan(&c.prevID, &c.prev, &c.nextID, &c.next, &c.frequency, &c.order)
}
