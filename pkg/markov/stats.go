package markov

import (
	"context"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models    []ModelInfo        // A list of models in the database
	Stats     map[int]ModelStats // A mapping of model ids to their stats
	VocabSize int                // The number of unique tokens in all models' vocabularies
}

// ModelStats holds aggregated statistics for a single count network.
type ModelStats struct {
	Predecessors   int // The number of unique tokens with at least one successor; possible start tokens.
	TotalChains    int // The number of unique prev->next links.
	TotalFrequency int // The sum of frequencies of all links; the total number of trained transitions.
}

// Stats computes the same statistics as GetStats for an in-memory network.
func (n *CountNetwork) Stats() ModelStats {
	var stats ModelStats
	if n == nil {
		return stats
	}
	stats.Predecessors = len(n.tokens)
	for _, row := range n.rows {
		stats.TotalChains += len(row.next)
		stats.TotalFrequency += row.total
	}
	return stats
}

// GetStats returns a snapshot of statistics for the entire database,
// including global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var vocabLen int
	err = s.stmtGetVocabLen.QueryRowContext(ctx).Scan(&vocabLen)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats)
	for _, v := range modelInfos {
		models = append(models, v)
		stats, err := s.GetModelStats(ctx, v)
		if err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}

	return &DBStats{
		Models:    models,
		Stats:     modelStats,
		VocabSize: vocabLen,
	}, nil
}

// GetModelStats returns the statistics of a single stored model.
func (s *Store) GetModelStats(ctx context.Context, model ModelInfo) (ModelStats, error) {
	var stats ModelStats
	if err := s.stmtModelChains.QueryRowContext(ctx, model.Id).Scan(&stats.TotalChains); err != nil {
		return ModelStats{}, err
	}
	if err := s.stmtModelFreq.QueryRowContext(ctx, model.Id).Scan(&stats.TotalFrequency); err != nil {
		return ModelStats{}, err
	}
	if err := s.stmtModelStarters.QueryRowContext(ctx, model.Id).Scan(&stats.Predecessors); err != nil {
		return ModelStats{}, err
	}
	return stats, nil
}
