package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CTAG07/bytemarkov/pkg/markov"
	"github.com/CTAG07/bytemarkov/pkg/store"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		order      int
		appendMode bool
	)

	cmd := &cobra.Command{
		Use:   "train <model> [corpus files...]",
		Short: "Train a model from one or more corpus files",
		Long: `Train a byte-level model from the given files, read one after another as a
single corpus. With no files, or with "-", the corpus is read from stdin.
An existing model with the same name is replaced unless --append is given,
in which case the new transitions are merged into it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := args[0]
			if !cmd.Flags().Changed("order") {
				order = a.config.DefaultOrder
			}

			b, err := markov.NewBuilder(order)
			if err != nil {
				return err
			}
			b.SetLogger(a.logger)

			sources := args[1:]
			if len(sources) == 0 {
				sources = []string{"-"}
			}
			for _, src := range sources {
				if err = trainFrom(cmd, b, src); err != nil {
					return err
				}
			}
			m := b.Model()

			if appendMode {
				existing, err := a.store.GetModelInfo(ctx, name)
				switch {
				case errors.Is(err, store.ErrModelNotFound):
				case err != nil:
					return err
				default:
					current, err := a.store.LoadModel(ctx, existing)
					if err != nil {
						return err
					}
					if m, err = markov.Merge(current, m); err != nil {
						return err
					}
				}
			}

			info, err := a.store.SaveModel(ctx, name, m)
			if err != nil {
				return fmt.Errorf("failed to save model: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "trained %q (order %d, revision %s): %s windows from %s of corpus\n",
				info.Name, info.Order, info.Revision, humanize.Comma(int64(m.Len())), humanize.Bytes(uint64(m.CorpusSize())))
			return nil
		},
	}

	cmd.Flags().IntVarP(&order, "order", "n", 3, "Window size in bytes (default: default_order from the config)")
	cmd.Flags().BoolVarP(&appendMode, "append", "a", false, "Merge into an existing model instead of replacing it")
	return cmd
}

// trainFrom streams a single corpus source into b.
func trainFrom(cmd *cobra.Command, b *markov.Builder, src string) error {
	var r io.Reader
	if src == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("failed to open corpus: %w", err)
		}
		defer func(f *os.File) {
			_ = f.Close()
		}(f)
		r = f
	}
	if err := b.Train(cmd.Context(), r); err != nil {
		return fmt.Errorf("training on %s failed: %w", src, err)
	}
	return nil
}
