package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/germanamz/silk/pkg/engine"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat, download and preference endpoints over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()

			eng, err := engine.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := eng.Close(ctx); err != nil {
					logger.Warn("engine close failed", slog.Any("error", err))
				}
			}()

			logger.InfoContext(ctx, "listening", slog.String("addr", cfg.Server.Addr))
			return eng.Server(nil).Run(ctx, cfg.Server.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}
