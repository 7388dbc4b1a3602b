package main

import (
	"github.com/spf13/cobra"

	"github.com/germanamz/silk/pkg/engine"
	"github.com/germanamz/silk/pkg/tools/mcpserver"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the project archive tool and resource over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			b := engine.NewArchive(cfg.Archive, logger)

			tb := toolbox.New()
			tb.Register(b.Tool())

			srv := mcpserver.New("silk", version, logger)
			srv.RegisterToolBox(tb)
			srv.RegisterArchive(b)

			return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
