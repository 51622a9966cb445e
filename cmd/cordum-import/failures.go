package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cordum/cordum-import/core/infra/failures"
	"github.com/cordum/cordum-import/core/infra/redisutil"
)

func newFailuresCommand(root *rootOptions) *cobra.Command {
	var (
		runID string
		limit int64
		purge bool
	)
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List entries an import run could not submit",
		Long: `Without --run, lists recent runs that recorded failures. With --run, lists
the failed entries of that run. Requires REDIS_URL (or redis_url in the config).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.RedisURL == "" {
				return errors.New("failure ledger needs REDIS_URL")
			}
			ctx := commandContext(cmd)
			client, err := redisutil.Connect(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			ledger, err := failures.NewLedger(client, 0)
			if err != nil {
				_ = client.Close()
				return err
			}
			defer ledger.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			switch {
			case runID == "" && purge:
				return errors.New("--clear needs --run")
			case runID == "":
				runs, err := ledger.Runs(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "RUN\tSTARTED\tFAILURES")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Failures)
				}
			case purge:
				if err := ledger.Delete(ctx, runID); err != nil {
					return err
				}
				fmt.Fprintf(tw, "cleared %s\n", runID)
			default:
				entries, err := ledger.List(ctx, runID, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "PATH\tCOMMAND\tVERSION\tSTATUS\tREASON")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", e.Path, e.Command, e.Version, e.Status, e.Reason)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "run id printed by import")
	cmd.Flags().Int64Var(&limit, "limit", 100, "maximum rows")
	cmd.Flags().BoolVar(&purge, "clear", false, "delete the failures of --run")
	return cmd
}
