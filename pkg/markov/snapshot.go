package markov

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidSnapshot is returned by FromExported when a snapshot cannot
// describe a valid model.
var ErrInvalidSnapshot = errors.New("markov: invalid model snapshot")

// ExportedModel is the serializable representation of a model, used for
// import, export and storage.
type ExportedModel struct {
	Order      int             `json:"order" msgpack:"order"`
	CorpusSize int64           `json:"corpus_size" msgpack:"corpus_size"`
	Chains     []ExportedChain `json:"chains" msgpack:"chains"` // first-seen order
}

// ExportedChain is the serializable representation of one window and its
// successors, used within an ExportedModel.
type ExportedChain struct {
	Window     []byte              `json:"window" msgpack:"window"`
	Successors []ExportedSuccessor `json:"successors" msgpack:"successors"`
}

// ExportedSuccessor is the serializable representation of a single link in a
// chain.
type ExportedSuccessor struct {
	Byte byte `json:"byte" msgpack:"byte"`
	Freq int  `json:"freq" msgpack:"freq"`
}

// Export returns a serializable copy of the model.
func (m *Model) Export() *ExportedModel {
	exported := &ExportedModel{
		Order:      m.order,
		CorpusSize: m.corpusSize,
		Chains:     make([]ExportedChain, 0, len(m.windows)),
	}
	for _, w := range m.windows {
		succ := m.chains[w]
		chain := ExportedChain{
			Window:     w.Bytes(),
			Successors: make([]ExportedSuccessor, len(succ)),
		}
		for i, s := range succ {
			chain.Successors[i] = ExportedSuccessor{Byte: s.Byte, Freq: s.Freq}
		}
		exported.Chains = append(exported.Chains, chain)
	}
	return exported
}

// FromExported rebuilds a model from a snapshot. Every window must be exactly
// Order bytes long and appear once, and every successor must have a positive
// frequency and appear once per window. Chains without successors are skipped.
func FromExported(exported *ExportedModel) (*Model, error) {
	if err := validateOrder(exported.Order); err != nil {
		return nil, err
	}
	m := &Model{
		order:      exported.Order,
		chains:     make(map[Window][]Successor, len(exported.Chains)),
		windows:    make([]Window, 0, len(exported.Chains)),
		corpusSize: exported.CorpusSize,
	}
	// Windows without successors are not kept in m, so duplicates are
	// checked against every listed window.
	seen := make(map[Window]struct{}, len(exported.Chains))
	for _, chain := range exported.Chains {
		if len(chain.Window) != exported.Order {
			return nil, fmt.Errorf("%w: window %q has length %d, want %d", ErrInvalidSnapshot, chain.Window, len(chain.Window), exported.Order)
		}
		w := NewWindow(chain.Window)
		if _, dup := seen[w]; dup {
			return nil, fmt.Errorf("%w: duplicate window %s", ErrInvalidSnapshot, w)
		}
		seen[w] = struct{}{}
		if len(chain.Successors) == 0 {
			continue
		}

		succ := make([]Successor, 0, len(chain.Successors))
		for _, s := range chain.Successors {
			if s.Freq < 1 {
				return nil, fmt.Errorf("%w: window %s has successor %q with frequency %d", ErrInvalidSnapshot, w, s.Byte, s.Freq)
			}
			succ = append(succ, Successor{Byte: s.Byte, Freq: s.Freq})
		}
		slices.SortFunc(succ, func(x, y Successor) int {
			return cmp.Compare(x.Byte, y.Byte)
		})
		for i := 1; i < len(succ); i++ {
			if succ[i].Byte == succ[i-1].Byte {
				return nil, fmt.Errorf("%w: window %s lists successor %q twice", ErrInvalidSnapshot, w, succ[i].Byte)
			}
		}

		m.chains[w] = succ
		m.windows = append(m.windows, w)
	}
	return m, nil
}
