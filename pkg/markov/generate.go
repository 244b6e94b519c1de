package markov

import (
	"cmp"
	"slices"
)

// defaultMaxLength bounds Generate and GenerateStream when no WithMaxLength
// option is given.
const defaultMaxLength = 1000

// generateOptions Is used by chains and the generate functions to configure selection.
type generateOptions struct {
	maxLength int
	weighted  bool
	topK      int
}

func newGenerateOptions(opts []GenerateOption) generateOptions {
	options := generateOptions{
		maxLength: defaultMaxLength,
		weighted:  false,
		topK:      0,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in NewChain, Generate and GenerateStream.
type GenerateOption func(*generateOptions)

// WithMaxLength sets the maximum number of bytes Generate and GenerateStream
// produce. A Chain driven directly is never capped. A value of 0 or less
// disables the cap, so generation runs until a dead end.
func WithMaxLength(n int) GenerateOption {
	return func(o *generateOptions) { o.maxLength = n }
}

// WithWeighted switches successor selection from uniform over the distinct
// successors (the default) to weighted by how often each successor was observed.
func WithWeighted(weighted bool) GenerateOption {
	return func(o *generateOptions) { o.weighted = weighted }
}

// WithTopK restricts the selection pool to the `k` most frequent successors
// at each step. A value of 0 disables Top-K filtering.
func WithTopK(k int) GenerateOption {
	return func(o *generateOptions) { o.topK = k }
}

// Generate walks a new chain from start and returns the bytes it emits, up to
// the configured maximum length. The result is empty if start is not in the
// model.
func Generate(m *Model, start Window, rnd Rand, opts ...GenerateOption) []byte {
	c := NewChain(m, start, rnd, opts...)
	var out []byte
	if c.opts.maxLength > 0 {
		out = make([]byte, 0, min(c.opts.maxLength, 4096))
	}
	for c.opts.maxLength <= 0 || len(out) < c.opts.maxLength {
		b, ok := c.Next()
		if !ok {
			break
		}
		out = append(out, b)
	}
	return out
}

// chooseSuccessor abstracts the selection logic from the chain's step.
// It consumes exactly one draw from rnd.
func chooseSuccessor(choices []Successor, rnd Rand, options *generateOptions) byte {
	if options.topK > 0 && options.topK < len(choices) {
		choices = slices.Clone(choices)
		slices.SortStableFunc(choices, func(x, y Successor) int {
			return cmp.Compare(y.Freq, x.Freq)
		})
		choices = choices[:options.topK]
	}

	if !options.weighted {
		return choices[rnd.IntN(len(choices))].Byte
	}

	var totalFreq int
	for _, choice := range choices {
		totalFreq += choice.Freq
	}
	randChoice := rnd.IntN(totalFreq)
	for _, choice := range choices {
		randChoice -= choice.Freq
		if randChoice < 0 {
			return choice.Byte
		}
	}
	// Unreachable for a well-formed successor set.
	return choices[len(choices)-1].Byte
}
