package store

import (
	"context"
)

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models []ModelInfo        `json:"models"` // A list of models in the database
	Stats  map[int]ModelStats `json:"stats"`  // A mapping of model ids to their stats
}

// ModelStats holds aggregated statistics for a single stored model.
type ModelStats struct {
	Windows        int `json:"windows"`         // The number of distinct windows.
	Transitions    int `json:"transitions"`     // The number of unique window->byte links.
	TotalFrequency int `json:"total_frequency"` // The sum of frequencies of all links; the total number of trained transitions.
}

// GetStats returns a snapshot of statistics for every stored model. It is
// computed in SQL and does not load the models into memory.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ModelStats, len(modelInfos))
	for _, v := range modelInfos {
		models = append(models, v)
		var stats ModelStats
		if err = s.stmtModelWindows.QueryRowContext(ctx, v.Id).Scan(&stats.Windows); err != nil {
			return nil, err
		}
		if err = s.stmtModelChains.QueryRowContext(ctx, v.Id).Scan(&stats.Transitions); err != nil {
			return nil, err
		}
		if err = s.stmtModelFreq.QueryRowContext(ctx, v.Id).Scan(&stats.TotalFrequency); err != nil {
			return nil, err
		}
		modelStats[v.Id] = stats
	}

	return &DBStats{
		Models: models,
		Stats:  modelStats,
	}, nil
}
