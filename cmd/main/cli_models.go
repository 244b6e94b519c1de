package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/CTAG07/bytemarkov/pkg/markov"
	"github.com/CTAG07/bytemarkov/pkg/store"
)

func newModelsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List stored models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			infos, err := a.store.GetModelInfos(cmd.Context())
			if err != nil {
				return err
			}
			names := slices.Sorted(maps.Keys(infos))

			if asJSON {
				list := make([]store.ModelInfo, 0, len(names))
				for _, name := range names {
					list = append(list, infos[name])
				}
				return writeJSON(cmd.OutOrStdout(), list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tORDER\tCORPUS\tREVISION")
			for _, name := range names {
				info := infos[name]
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", info.Name, info.Order, humanize.Bytes(uint64(info.CorpusSize)), info.Revision)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats [model]",
		Short: "Show statistics for one model or the whole database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				stats, err := a.store.GetStats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, stats)
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "NAME\tORDER\tWINDOWS\tTRANSITIONS\tOBSERVATIONS")
				slices.SortFunc(stats.Models, func(x, y store.ModelInfo) int {
					return strings.Compare(x.Name, y.Name)
				})
				for _, info := range stats.Models {
					s := stats.Stats[info.Id]
					_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", info.Name, info.Order,
						humanize.Comma(int64(s.Windows)), humanize.Comma(int64(s.Transitions)), humanize.Comma(int64(s.TotalFrequency)))
				}
				return tw.Flush()
			}

			info, err := a.store.GetModelInfo(ctx, args[0])
			if err != nil {
				return err
			}
			m, err := a.store.LoadModel(ctx, info)
			if err != nil {
				return err
			}
			stats := m.Stats()
			if asJSON {
				return writeJSON(out, stats)
			}
			printModelStats(out, info.Name, stats)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the statistics as JSON")
	return cmd
}

func printModelStats(w io.Writer, name string, s markov.ModelStats) {
	avg := 0.0
	if s.Windows > 0 {
		avg = float64(s.Transitions) / float64(s.Windows)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "model:\t%s\n", name)
	_, _ = fmt.Fprintf(tw, "order:\t%d\n", s.Order)
	_, _ = fmt.Fprintf(tw, "corpus:\t%s\n", humanize.Bytes(uint64(s.CorpusSize)))
	_, _ = fmt.Fprintf(tw, "windows:\t%s\n", humanize.Comma(int64(s.Windows)))
	_, _ = fmt.Fprintf(tw, "transitions:\t%s\n", humanize.Comma(int64(s.Transitions)))
	_, _ = fmt.Fprintf(tw, "observations:\t%s\n", humanize.Comma(int64(s.TotalFrequency)))
	_, _ = fmt.Fprintf(tw, "branching:\tavg %s, max %d\n", humanize.FormatFloat("#.##", avg), s.MaxBranching)
	_, _ = fmt.Fprintf(tw, "dead ends:\t%s\n", humanize.Comma(int64(s.DeadEnds)))
	_ = tw.Flush()
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <model>...",
		Aliases: []string{"remove"},
		Short:   "Remove one or more models",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			for _, name := range args {
				info, err := a.store.GetModelInfo(ctx, name)
				if err != nil {
					return err
				}
				if err = a.store.RemoveModel(ctx, info); err != nil {
					return fmt.Errorf("failed to remove model %q: %w", name, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %q\n", name)
			}
			return nil
		},
	}
}

func newPruneCmd(a *app) *cobra.Command {
	var (
		minFreq int
		into    string
	)

	cmd := &cobra.Command{
		Use:   "prune <model>",
		Short: "Drop rare transitions from a model",
		Long: `Remove every transition observed --min-freq times or fewer. Windows left
without successors are dropped. The result replaces the model unless --into
names another model to save it as.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			info, err := a.store.GetModelInfo(ctx, args[0])
			if err != nil {
				return err
			}
			m, err := a.store.LoadModel(ctx, info)
			if err != nil {
				return err
			}

			pruned := m.Prune(minFreq)
			target := info.Name
			if into != "" {
				target = into
			}
			saved, err := a.store.SaveModel(ctx, target, pruned)
			if err != nil {
				return fmt.Errorf("failed to save pruned model: %w", err)
			}

			before, after := m.Stats(), pruned.Stats()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pruned %q into %q: %s of %s transitions kept, %s of %s windows kept\n",
				info.Name, saved.Name,
				humanize.Comma(int64(after.Transitions)), humanize.Comma(int64(before.Transitions)),
				humanize.Comma(int64(after.Windows)), humanize.Comma(int64(before.Windows)))
			return nil
		},
	}
	cmd.Flags().IntVarP(&minFreq, "min-freq", "m", 1, "Drop transitions seen this many times or fewer")
	cmd.Flags().StringVar(&into, "into", "", "Save the pruned model under this name instead of replacing it")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
