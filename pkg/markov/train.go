package markov

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
)

// trainChunkSize is how many bytes Train reads from its source at a time.
const trainChunkSize = 32 * 1024

// Builder accumulates transitions from a corpus that may arrive in several
// pieces. Feeding a corpus to a Builder in any number of Write calls produces
// the same model as passing the whole corpus to Build.
//
// A Builder is not safe for concurrent use. The models it returns are.
type Builder struct {
	order      int
	counts     map[Window]map[byte]int
	windows    []Window
	tail       []byte // last min(order, consumed) bytes seen
	corpusSize int64
	logger     *slog.Logger
}

// NewBuilder returns an empty Builder for models of the given order.
func NewBuilder(order int) (*Builder, error) {
	if err := validateOrder(order); err != nil {
		return nil, err
	}
	return &Builder{
		order:  order,
		counts: make(map[Window]map[byte]int),
		tail:   make([]byte, 0, order),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Builder. By default, all logs are discarded.
func (b *Builder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Write records every transition that ends inside p, including transitions
// whose window started in an earlier Write. It never returns an error.
func (b *Builder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, 0, len(b.tail)+len(p))
	buf = append(buf, b.tail...)
	buf = append(buf, p...)

	for i := 0; i+b.order < len(buf); i++ {
		b.observe(buf[i:i+b.order], buf[i+b.order])
	}

	keep := min(b.order, len(buf))
	b.tail = append(b.tail[:0], buf[len(buf)-keep:]...)
	b.corpusSize += int64(len(p))
	return len(p), nil
}

func (b *Builder) observe(window []byte, next byte) {
	succ, ok := b.counts[Window(window)]
	if !ok {
		w := NewWindow(window)
		succ = make(map[byte]int, 1)
		b.counts[w] = succ
		b.windows = append(b.windows, w)
	}
	succ[next]++
}

// Train streams r into the builder until io.EOF. The context is checked
// between chunks, so a cancelled context stops training early with ctx.Err().
// Transitions read before the cancellation remain in the builder.
func (b *Builder) Train(ctx context.Context, r io.Reader) error {
	buf := make([]byte, trainChunkSize)
	var read int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = b.Write(buf[:n])
			read += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("corpus read error: %w", err)
		}
	}

	b.logger.InfoContext(ctx, "Training completed",
		slog.Int("order", b.order),
		slog.Int64("bytes_read", read),
		slog.Int("windows", len(b.windows)),
	)
	return nil
}

// Model returns an immutable snapshot of everything the builder has seen so
// far. The builder can keep accepting input afterwards without affecting the
// returned model.
func (b *Builder) Model() *Model {
	chains := make(map[Window][]Successor, len(b.counts))
	for w, succ := range b.counts {
		list := make([]Successor, 0, len(succ))
		for c, freq := range succ {
			list = append(list, Successor{Byte: c, Freq: freq})
		}
		slices.SortFunc(list, func(x, y Successor) int {
			return cmp.Compare(x.Byte, y.Byte)
		})
		chains[w] = list
	}
	return &Model{
		order:      b.order,
		chains:     chains,
		windows:    slices.Clone(b.windows),
		corpusSize: b.corpusSize,
	}
}

// BuildFromReader trains a new model of the given order from r.
func BuildFromReader(ctx context.Context, r io.Reader, order int) (*Model, error) {
	b, err := NewBuilder(order)
	if err != nil {
		return nil, err
	}
	if err = b.Train(ctx, r); err != nil {
		return nil, err
	}
	return b.Model(), nil
}
