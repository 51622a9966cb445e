package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cordum/cordum-import/core/infra/buildinfo"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "cordum-import", buildinfo.Info())
		},
	}
}
