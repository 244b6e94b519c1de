package markov

// ModelStats holds aggregated statistics for a single model.
type ModelStats struct {
	Order          int   `json:"order"`           // The window size.
	CorpusSize     int64 `json:"corpus_size"`     // Bytes consumed while building.
	Windows        int   `json:"windows"`         // The number of distinct windows.
	Transitions    int   `json:"transitions"`     // The number of unique window->byte links.
	TotalFrequency int   `json:"total_frequency"` // The sum of all link frequencies; the number of trained transitions.
	MaxBranching   int   `json:"max_branching"`   // The largest successor set.
	DeadEnds       int   `json:"dead_ends"`       // Links whose next window has no successors.
}

// Stats computes a snapshot of statistics for the model.
func (m *Model) Stats() ModelStats {
	stats := ModelStats{
		Order:      m.order,
		CorpusSize: m.corpusSize,
		Windows:    len(m.windows),
	}
	for w, succ := range m.chains {
		stats.Transitions += len(succ)
		stats.MaxBranching = max(stats.MaxBranching, len(succ))
		for _, s := range succ {
			stats.TotalFrequency += s.Freq
			if !m.Contains(w.Slide(s.Byte)) {
				stats.DeadEnds++
			}
		}
	}
	return stats
}
