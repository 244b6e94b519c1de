package markov

import "context"

// GenerateStream walks a new chain from start in a separate goroutine and
// returns a read-only channel of the bytes it emits. This allows for
// processing the generated output byte-by-byte, which is useful for
// real-time applications or when generating very long sequences. The channel
// is closed once the chain is exhausted, the maximum length is reached, or
// the context is cancelled.
func GenerateStream(ctx context.Context, m *Model, start Window, rnd Rand, opts ...GenerateOption) <-chan byte {
	c := NewChain(m, start, rnd, opts...)
	byteChan := make(chan byte)

	go func() {
		defer close(byteChan)

		generated := 0
		for c.opts.maxLength <= 0 || generated < c.opts.maxLength {
			select {
			case <-ctx.Done():
				return
			default:
				// continue
			}

			b, ok := c.Next()
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
				return
			case byteChan <- b:
			}
			generated++
		}
	}()

	return byteChan
}
