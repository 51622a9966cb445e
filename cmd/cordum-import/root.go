package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/cordum/cordum-import/core/infra/config"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.Import, error) {
	return config.Load(o.configPath)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cordum-import",
		Short: "Import a cordum export archive",
		Long: `Replays the catalogs, reports and facts of an export archive against the
command endpoint, using the archive's export metadata to pick each command's
wire version. Failed entries are logged and the import continues.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (env overrides it, flags override env)")

	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newFailuresCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
