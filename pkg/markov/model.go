package markov

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

// ModelInfo holds the metadata of a stored model: its unique ID and name.
type ModelInfo struct {
	Id   int
	Name string
}

// ExportedModel is the serializable representation of a stored model,
// used for JSON-based import and export.
type ExportedModel struct {
	Name       string          `json:"name"`
	Vocabulary map[string]int  `json:"vocabulary"` // token_text -> token_id
	Chains     []ExportedChain `json:"chains"`
}

// ExportedChain is the serializable representation of a single
// `prev -> next` link, used within an ExportedModel. Order preserves
// first-seen order across export and import.
type ExportedChain struct {
	PrevTokenID int `json:"prev_token_id"`
	NextTokenID int `json:"next_token_id"`
	Frequency   int `json:"frequency"`
	Order       int `json:"order"`
}

// GetModelInfos retrieves metadata for all models currently in the database,
// returning them in a map keyed by model name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model specified by name.
// It returns sql.ErrNoRows if no such model exists.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	var modelId int
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&modelId)
	if err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{
		Id:   modelId,
		Name: modelName,
	}, nil
}

// InsertModel creates a new, empty model entry in the database.
func (s *Store) InsertModel(ctx context.Context, model ModelInfo) error {
	if model.Name == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidInput)
	}
	_, err := s.stmtAddModel.ExecContext(ctx, model.Name)
	return err
}

// RemoveModel deletes a model and all of its associated chain data from the
// database. The operation is performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove chains for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
	)

	return tx.Commit()
}

// VocabStr looks up a token string in the vocabulary and returns its corresponding ID.
// It returns an error if the token is not found.
func (s *Store) VocabStr(ctx context.Context, token string) (int, error) {
	var tokenId int
	err := s.stmtGetTokenID.QueryRowContext(ctx, token).Scan(&tokenId)
	if err != nil {
		return 0, err
	}
	return tokenId, nil
}

// VocabInt looks up a token ID in the vocabulary and returns its corresponding text.
// It returns an error if the ID is not found.
func (s *Store) VocabInt(ctx context.Context, id int) (string, error) {
	var tokenText string
	err := s.stmtGetTokenText.QueryRowContext(ctx, id).Scan(&tokenText)
	if err != nil {
		return "", err
	}
	return tokenText, nil
}

// ExportModel serializes a given model into a JSON format and writes it to the
// provided io.Writer. This is useful for backups or for transferring models.
func (s *Store) ExportModel(ctx context.Context, modelInfo ModelInfo, w io.Writer) error {
	rows, err := s.stmtLoadChains.QueryContext(ctx, modelInfo.Id)
	if err != nil {
		return fmt.Errorf("could not query chains for export: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	exported := ExportedModel{
		Name:       modelInfo.Name,
		Vocabulary: make(map[string]int),
		Chains:     make([]ExportedChain, 0),
	}
	for rows.Next() {
		var link chainRow
		if err = link.scan(rows); err != nil {
			return fmt.Errorf("could not read chain for export: %w", err)
		}
		exported.Vocabulary[link.prev] = link.prevID
		exported.Vocabulary[link.next] = link.nextID
		exported.Chains = append(exported.Chains, ExportedChain{
			PrevTokenID: link.prevID,
			NextTokenID: link.nextID,
			Frequency:   link.frequency,
			Order:       link.order,
		})
	}
	if err = rows.Err(); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Model exported",
		slog.String("model_name", modelInfo.Name),
		slog.Int("model_id", modelInfo.Id),
		slog.Int("vocab_items_exported", len(exported.Vocabulary)),
		slog.Int("chains_exported", len(exported.Chains)),
	)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportModel reads a JSON representation of a model from an io.Reader and
// merges its data into the database. If the model name already exists, the
// new chain data is merged with the existing data (frequencies are added) and
// new links are ordered after the existing ones. If the model does not exist,
// it is created. The entire operation is transactional and handles re-mapping
// of vocabulary IDs.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) error {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Name == "" {
		return fmt.Errorf("%w: imported model has no name", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction for import: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var modelID int
	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", imported.Name).Scan(&modelID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, "INSERT INTO markov_models (model_name) VALUES (?) RETURNING model_id", imported.Name).Scan(&modelID)
		if err != nil {
			return fmt.Errorf("failed to insert new model '%s': %w", imported.Name, err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to query for model '%s': %w", imported.Name, err)
	}

	stmtInsertVocab := tx.StmtContext(ctx, s.stmtInsertVocab)

	vocabIDMap := make(map[int]int) // old_id -> new_id
	for text, oldID := range imported.Vocabulary {
		var newID int
		if err := stmtInsertVocab.QueryRowContext(ctx, text).Scan(&newID); err != nil {
			return fmt.Errorf("failed to get/insert vocab '%s': %w", text, err)
		}
		vocabIDMap[oldID] = newID
	}

	nextOrder, err := maxLinkOrder(ctx, tx, modelID)
	if err != nil {
		return err
	}

	// Prepare a special query so that if we're updating instead of inserting, we don't overwrite the frequency value
	stmtInsertChain, err := tx.PrepareContext(ctx, `
		INSERT INTO markov_chains (model_id, prev_token_id, next_token_id, frequency, link_order) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model_id, prev_token_id, next_token_id) DO UPDATE SET frequency = frequency + excluded.frequency;
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmtInsertChain *sql.Stmt) {
		_ = stmtInsertChain.Close()
	}(stmtInsertChain)

	chains := slices.Clone(imported.Chains)
	slices.SortStableFunc(chains, func(a, b ExportedChain) int {
		return cmp.Compare(a.Order, b.Order)
	})

	for _, chain := range chains {
		if chain.Frequency < 1 {
			return fmt.Errorf("%w: chain link (%d -> %d) has frequency %d", ErrInvalidInput, chain.PrevTokenID, chain.NextTokenID, chain.Frequency)
		}
		newPrevTokenID, ok := vocabIDMap[chain.PrevTokenID]
		if !ok {
			return fmt.Errorf("import consistency error: old token id %d not found in vocab map", chain.PrevTokenID)
		}
		newNextTokenID, ok := vocabIDMap[chain.NextTokenID]
		if !ok {
			return fmt.Errorf("import consistency error: old token id %d not found in vocab map", chain.NextTokenID)
		}

		nextOrder++
		_, err = stmtInsertChain.ExecContext(ctx, modelID, newPrevTokenID, newNextTokenID, chain.Frequency, nextOrder)
		if err != nil {
			return fmt.Errorf("failed to insert chain link (%d -> %d): %w", newPrevTokenID, newNextTokenID, err)
		}
	}

	s.logger.InfoContext(ctx, "Model imported successfully",
		slog.String("model_name", imported.Name),
		slog.Int("target_model_id", modelID),
		slog.Int("vocab_items_merged", len(imported.Vocabulary)),
		slog.Int("chains_merged", len(imported.Chains)),
	)

	return tx.Commit()
}
