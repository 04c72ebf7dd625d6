package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipgen/internal/config"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "clipgen %s (commit %s, built %s)\n",
				config.Version, config.GitCommit, config.BuildTime)
			return err
		},
	}
}
