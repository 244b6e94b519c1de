package markov

import "slices"

// Prune returns a new model without the transitions observed `minFreq` times
// or fewer. Windows left with no successors are dropped entirely; the
// remaining windows keep their first-seen order. The receiver is unchanged.
//
// Pruning removes rare, often noisy transitions, but it also creates new
// dead ends wherever a pruned window used to be reachable.
func (m *Model) Prune(minFreq int) *Model {
	pruned := &Model{
		order:      m.order,
		chains:     make(map[Window][]Successor, len(m.chains)),
		windows:    make([]Window, 0, len(m.windows)),
		corpusSize: m.corpusSize,
	}
	for _, w := range m.windows {
		kept := slices.DeleteFunc(slices.Clone(m.chains[w]), func(s Successor) bool {
			return s.Freq <= minFreq
		})
		if len(kept) == 0 {
			continue
		}
		pruned.chains[w] = kept
		pruned.windows = append(pruned.windows, w)
	}
	return pruned
}
