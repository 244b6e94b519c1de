package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/CTAG07/bytemarkov/pkg/store"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export <model>",
		Short: "Export a model as JSON or MessagePack",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f, err := store.ParseFormat(format)
			if err != nil {
				return err
			}
			info, err := a.store.GetModelInfo(ctx, args[0])
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				return a.store.ExportModel(ctx, info, cmd.OutOrStdout(), f)
			}

			// Encode fully before touching the destination so a failed export
			// never leaves a truncated file behind.
			var buf bytes.Buffer
			if err = a.store.ExportModel(ctx, info, &buf, f); err != nil {
				return err
			}
			size := buf.Len()
			if err = atomic.WriteFile(out, &buf); err != nil {
				return fmt.Errorf("failed to write export file: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "exported %q to %s (%s)\n", info.Name, out, humanize.Bytes(uint64(size)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(store.FormatJSON), "Export format: json or msgpack")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var (
		format string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import an exported model",
		Long: `Import a model written by export. The model keeps the name recorded in the
file unless --name is given. Importing into an existing model of the same
order merges the two by adding their frequencies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := store.ParseFormat(format)
			if err != nil {
				return err
			}

			var r io.Reader
			if args[0] == "-" {
				r = cmd.InOrStdin()
			} else {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open import file: %w", err)
				}
				defer func(file *os.File) {
					_ = file.Close()
				}(file)
				r = file
			}

			info, err := a.store.ImportModel(cmd.Context(), r, f, name)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %q (order %d, revision %s)\n", info.Name, info.Order, info.Revision)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(store.FormatJSON), "Import format: json or msgpack")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Store the model under this name")
	return cmd
}
