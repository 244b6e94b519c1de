package main

import (
	"bufio"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/CTAG07/bytemarkov/pkg/markov"
)

var errUnknownSeed = errors.New("seed does not end in a window known to the model")

func newGenerateCmd(a *app) *cobra.Command {
	var (
		gen          GenerateConfig
		seed         string
		randomStart  bool
		randSeed     uint64
		includeStart bool
	)

	cmd := &cobra.Command{
		Use:   "generate <model>",
		Short: "Generate bytes from a trained model",
		Long: `Walk the named model and write the generated bytes to stdout. The walk
starts at the first window seen during training unless --seed or
--random-start says otherwise, and stops at --length bytes or at the first
window with no recorded successor.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			if !flags.Changed("length") {
				gen.MaxLength = a.config.Generate.MaxLength
			}
			if !flags.Changed("weighted") {
				gen.Weighted = a.config.Generate.Weighted
			}
			if !flags.Changed("topk") {
				gen.TopK = a.config.Generate.TopK
			}

			info, err := a.store.GetModelInfo(ctx, args[0])
			if err != nil {
				return err
			}
			m, err := a.store.LoadModel(ctx, info)
			if err != nil {
				return err
			}

			var rnd markov.Rand
			if randSeed != 0 {
				rnd = rand.New(rand.NewPCG(randSeed, randSeed))
			} else {
				rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
			}

			var (
				start markov.Window
				ok    bool
			)
			switch {
			case seed != "":
				if start, ok = m.StartFrom([]byte(seed)); !ok {
					return errUnknownSeed
				}
			case randomStart:
				start, ok = m.RandomStart(rnd)
			default:
				start, ok = m.Start()
			}
			if !ok {
				a.logger.Warn("Model has no transitions, nothing to generate", "model", info.Name)
				return nil
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			if includeStart {
				if _, err = out.WriteString(string(start)); err != nil {
					return err
				}
			}

			written := 0
			chain := markov.NewChain(m, start, rnd, generateOptions(gen)...)
			for b := range chain.Bytes() {
				if err = out.WriteByte(b); err != nil {
					return err
				}
				written++
				if gen.MaxLength > 0 && written >= gen.MaxLength {
					break
				}
				// An uncapped walk over a cyclic model never ends on its own.
				if written%4096 == 0 && ctx.Err() != nil {
					break
				}
			}
			if err = out.Flush(); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
			a.logger.Debug("Generation finished", "model", info.Name, "bytes", written, "start", start.String())
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&gen.MaxLength, "length", "l", 1000, "Maximum number of bytes to generate, 0 for no limit")
	flags.BoolVarP(&gen.Weighted, "weighted", "w", false, "Choose successors in proportion to their training frequency")
	flags.IntVarP(&gen.TopK, "topk", "k", 0, "Only choose among the k most frequent successors, 0 for all")
	flags.StringVarP(&seed, "seed", "s", "", "Continue from the last order bytes of this text")
	flags.BoolVar(&randomStart, "random-start", false, "Start from a random window instead of the first one")
	flags.Uint64Var(&randSeed, "rand-seed", 0, "Seed for the random source, 0 for a random seed")
	flags.BoolVar(&includeStart, "include-start", false, "Write the start window before the generated bytes")
	cmd.MarkFlagsMutuallyExclusive("seed", "random-start")
	return cmd
}

// generateOptions turns generation settings into chain options.
func generateOptions(cfg GenerateConfig) []markov.GenerateOption {
	opts := []markov.GenerateOption{
		markov.WithMaxLength(cfg.MaxLength),
		markov.WithWeighted(cfg.Weighted),
	}
	if cfg.TopK > 0 {
		opts = append(opts, markov.WithTopK(cfg.TopK))
	}
	return opts
}
