package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored models over HTTP",
		Long: `Start an HTTP server exposing the stored models. Generated bytes can be
drip-fed to clients in small chunks with random delays, see stream_config in
the config file. The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.config.Server.Addr = addr
			}
			return NewServer(a.config, a.logger, a.store).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: addr from the config)")
	return cmd
}
