package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/germanamz/silk/pkg/engine"
)

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Build the project archive without starting a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			b := engine.NewArchive(cfg.Archive, logger)

			res, err := b.Archive(cmd.Context(), "command line")
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = res.Filename
			}

			if path == "-" {
				_, err = cmd.OutOrStdout().Write(res.Data)
				return err
			}

			if err := os.WriteFile(path, res.Data, 0o600); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d files, %d skipped, %d bytes)\n",
				path, len(res.Included), len(res.Skipped), len(res.Data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "", `output file (default: archive name; "-" for stdout)`)

	return cmd
}
