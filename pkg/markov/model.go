package markov

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidOrder is returned when a model is requested with an order below 1.
var ErrInvalidOrder = errors.New("markov: order must be at least 1")

// Successor is a byte observed directly after a window, together with the
// number of times it was observed there.
type Successor struct {
	Byte byte
	Freq int
}

// Model is an immutable transition table from every observed window to the
// set of bytes that followed it in the training corpus. A Model is safe for
// concurrent use by multiple goroutines.
type Model struct {
	order      int
	chains     map[Window][]Successor // sorted by Byte
	windows    []Window               // first-seen order
	corpusSize int64
}

// Build constructs a model of the given order from a complete corpus. A
// corpus shorter than order+1 bytes produces an empty model.
func Build(corpus []byte, order int) (*Model, error) {
	b, err := NewBuilder(order)
	if err != nil {
		return nil, err
	}
	_, _ = b.Write(corpus)
	return b.Model(), nil
}

func validateOrder(order int) error {
	if order < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidOrder, order)
	}
	return nil
}

// Order returns the window size the model was built with.
func (m *Model) Order() int {
	return m.order
}

// Len returns the number of distinct windows in the model.
func (m *Model) Len() int {
	return len(m.windows)
}

// CorpusSize returns the number of corpus bytes that were used to build the model.
func (m *Model) CorpusSize() int64 {
	return m.corpusSize
}

// Contains reports whether w has at least one recorded successor.
func (m *Model) Contains(w Window) bool {
	_, ok := m.chains[w]
	return ok
}

// Successors returns a copy of the successor set recorded for w, ordered by
// byte value. It returns nil if w is not in the model.
func (m *Model) Successors(w Window) []Successor {
	succ, ok := m.chains[w]
	if !ok {
		return nil
	}
	return slices.Clone(succ)
}

// Windows returns every window in the model in the order it was first seen.
func (m *Model) Windows() []Window {
	return slices.Clone(m.windows)
}

// Start returns the first window recorded while building the model. It
// returns false for an empty model.
func (m *Model) Start() (Window, bool) {
	if len(m.windows) == 0 {
		return "", false
	}
	return m.windows[0], true
}

// StartFrom returns the window made of the last Order() bytes of seed, if the
// model has successors for it. This allows generation to continue a given
// piece of text.
func (m *Model) StartFrom(seed []byte) (Window, bool) {
	if len(seed) < m.order {
		return "", false
	}
	w := NewWindow(seed[len(seed)-m.order:])
	if !m.Contains(w) {
		return "", false
	}
	return w, true
}

// RandomStart picks a window uniformly at random using rnd, or a randomly
// seeded source if rnd is nil. It returns false for an empty model.
func (m *Model) RandomStart(rnd Rand) (Window, bool) {
	if len(m.windows) == 0 {
		return "", false
	}
	if rnd == nil {
		rnd = newRand()
	}
	return m.windows[rnd.IntN(len(m.windows))], true
}

// lookup is the internal, non-copying form of Successors used by chains.
func (m *Model) lookup(w Window) []Successor {
	return m.chains[w]
}
