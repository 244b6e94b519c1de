package markov

import (
	"iter"
	"math/rand/v2"
)

// Rand is the source of randomness a Chain draws from. IntN must return a
// value in [0, n). *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

// Chain is a single, stateful walk over a Model. Each call to Next emits one
// byte and slides the chain's window forward. Once the chain reaches a window
// with no recorded successor it is exhausted for good; to walk again, create
// a new Chain against the same Model.
//
// A Chain is not safe for concurrent use. Any number of chains may share a Model.
type Chain struct {
	model   *Model
	current Window
	active  bool
	rnd     Rand
	opts    generateOptions
}

// newRand returns a PCG source with a random seed.
func newRand() Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewChain returns a chain positioned at start. A start window that is not in
// the model is not an error: the chain simply produces nothing.
//
// If rnd is nil, the chain gets its own PCG source with a random seed.
func NewChain(m *Model, start Window, rnd Rand, opts ...GenerateOption) *Chain {
	if rnd == nil {
		rnd = newRand()
	}
	return &Chain{
		model:   m,
		current: start,
		active:  true,
		rnd:     rnd,
		opts:    newGenerateOptions(opts),
	}
}

// Next emits the next byte of the chain. It returns false once the chain is
// exhausted, and keeps returning false on every later call.
func (c *Chain) Next() (byte, bool) {
	if !c.active {
		return 0, false
	}
	choices := c.model.lookup(c.current)
	if len(choices) == 0 { // Dead end in chain
		c.active = false
		c.current = ""
		return 0, false
	}
	next := chooseSuccessor(choices, c.rnd, &c.opts)
	c.current = c.current.Slide(next)
	return next, true
}

// Window returns the chain's current window. It returns false once the chain
// has been found to be exhausted. A window returned with true may still turn
// out to be a dead end on the next call to Next.
func (c *Chain) Window() (Window, bool) {
	return c.current, c.active
}

// Bytes returns an iterator over the bytes the chain emits. The iterator
// shares the chain's state: stopping early and ranging again continues where
// the previous loop left off.
func (c *Chain) Bytes() iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for {
			b, ok := c.Next()
			if !ok || !yield(b) {
				return
			}
		}
	}
}
