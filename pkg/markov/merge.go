package markov

import (
	"cmp"
	"fmt"
	"slices"
)

// Merge combines two models of the same order into a new one, as if both
// corpora had been used for training: frequencies of shared transitions are
// added together. Windows keep a's first-seen order, followed by windows only
// b contains. Neither input is modified.
//
// Transitions that would span the boundary between the two corpora are not
// invented; train on the concatenated corpus if those matter.
func Merge(a, b *Model) (*Model, error) {
	if a.order != b.order {
		return nil, fmt.Errorf("markov: cannot merge models of order %d and %d", a.order, b.order)
	}
	merged := &Model{
		order:      a.order,
		chains:     make(map[Window][]Successor, len(a.chains)+len(b.chains)),
		windows:    make([]Window, 0, len(a.windows)+len(b.windows)),
		corpusSize: a.corpusSize + b.corpusSize,
	}
	for _, w := range a.windows {
		merged.chains[w] = slices.Clone(a.chains[w])
		merged.windows = append(merged.windows, w)
	}
	for _, w := range b.windows {
		existing, ok := merged.chains[w]
		if !ok {
			merged.chains[w] = slices.Clone(b.chains[w])
			merged.windows = append(merged.windows, w)
			continue
		}
		merged.chains[w] = mergeSuccessors(existing, b.chains[w])
	}
	return merged, nil
}

// mergeSuccessors merges two successor lists sorted by byte.
func mergeSuccessors(x, y []Successor) []Successor {
	out := make([]Successor, 0, len(x)+len(y))
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		switch cmp.Compare(x[i].Byte, y[j].Byte) {
		case -1:
			out = append(out, x[i])
			i++
		case 1:
			out = append(out, y[j])
			j++
		default:
			out = append(out, Successor{Byte: x[i].Byte, Freq: x[i].Freq + y[j].Freq})
			i++
			j++
		}
	}
	out = append(out, x[i:]...)
	return append(out, y[j:]...)
}
