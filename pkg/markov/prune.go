package markov

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// PruneModel removes all chain links from a specific model that have a frequency
// less than or equal to `minFreq`. This is useful for reducing the size of a model
// by removing rare, and often noisy, transitions. Tokens left without any
// successor simply become dead ends when the model is loaded again.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, minFreq int) error {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("chains_removed", rowsAffected),
	)
	return nil
}

// VocabularyPrune performs a database-wide cleanup, removing tokens from the
// global vocabulary that follow other tokens less than `minFrequency` times
// across all models. This is a destructive operation that will also delete all
// chain links that start or end at the removed tokens. It should be used with
// caution to reduce the overall database size.
func (s *Store) VocabularyPrune(ctx context.Context, minFrequency int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for pruning: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	// The rare set lives in a temp table on the transaction's connection so the
	// deletes below never hit SQLite's bound variable limit.
	if _, err = tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS markov_rare_tokens (token_id INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("failed to create rare token table: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM markov_rare_tokens`); err != nil {
		return fmt.Errorf("failed to clear rare token table: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO markov_rare_tokens (token_id)
		SELECT next_token_id FROM markov_chains GROUP BY next_token_id HAVING SUM(frequency) < ?`,
		minFrequency)
	if err != nil {
		return fmt.Errorf("failed to collect rare tokens: %w", err)
	}
	rareTokens, _ := res.RowsAffected()

	if rareTokens == 0 {
		s.logger.InfoContext(ctx, "No vocabulary to prune",
			slog.Int("min_frequency", minFrequency),
		)
		return tx.Commit()
	}

	// Chains in both directions go first, then the tokens themselves.
	res, err = tx.ExecContext(ctx, `
		DELETE FROM markov_chains
		WHERE next_token_id IN (SELECT token_id FROM markov_rare_tokens)
		   OR prev_token_id IN (SELECT token_id FROM markov_rare_tokens)`)
	if err != nil {
		return fmt.Errorf("failed to prune chains of rare tokens: %w", err)
	}
	chainsRemoved, _ := res.RowsAffected()

	if _, err = tx.ExecContext(ctx, `DELETE FROM markov_vocabulary WHERE token_id IN (SELECT token_id FROM markov_rare_tokens)`); err != nil {
		return fmt.Errorf("failed to prune rare tokens from vocabulary: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DROP TABLE markov_rare_tokens`); err != nil {
		return fmt.Errorf("failed to drop rare token table: %w", err)
	}

	s.logger.InfoContext(ctx, "Vocabulary pruned successfully",
		slog.Int("min_frequency", minFrequency),
		slog.Int64("tokens_removed", rareTokens),
		slog.Int64("chains_removed", chainsRemoved),
	)

	return tx.Commit()
}
