package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cordum/cordum-import/core/backup/command"
	"github.com/cordum/cordum-import/core/backup/importer"
	"github.com/cordum/cordum-import/core/infra/bus"
	"github.com/cordum/cordum-import/core/infra/buildinfo"
	"github.com/cordum/cordum-import/core/infra/config"
	"github.com/cordum/cordum-import/core/infra/failures"
	"github.com/cordum/cordum-import/core/infra/logging"
	"github.com/cordum/cordum-import/core/infra/metrics"
	"github.com/cordum/cordum-import/core/infra/redisutil"
)

const (
	metricsNamespace = "cordum"
	pushJob          = "cordum_import"
)

type importOptions struct {
	infile            string
	host              string
	port              int
	root              string
	honorFactsVersion bool
}

func newImportCommand(root *rootOptions) *cobra.Command {
	opts := &importOptions{}
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Submit every catalog, report and facts document of an archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runImport(cmd, cfg, opts.infile)
		},
	}
	defaults := config.Default()
	cmd.Flags().StringVar(&opts.infile, "infile", "", "export archive (.tar.gz)")
	cmd.Flags().StringVar(&opts.host, "host", defaults.Host, "command endpoint host")
	cmd.Flags().IntVar(&opts.port, "port", defaults.Port, "command endpoint port")
	cmd.Flags().StringVar(&opts.root, "root", defaults.Root, "export root directory inside the archive")
	cmd.Flags().BoolVar(&opts.honorFactsVersion, "honor-facts-version", false, "submit facts with the export metadata version instead of the baseline")
	_ = cmd.MarkFlagRequired("infile")
	return cmd
}

// apply lets explicitly set flags win over file and environment values.
func (o *importOptions) apply(cmd *cobra.Command, cfg *config.Import) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("root") {
		cfg.Root = o.root
	}
	if flags.Changed("honor-facts-version") {
		cfg.HonorFactsVersion = o.honorFactsVersion
	}
}

func runImport(cmd *cobra.Command, cfg *config.Import, infile string) error {
	ctx := commandContext(cmd)
	buildinfo.Log("cordum-import")

	client, err := command.NewClient(cfg.Host, cfg.Port,
		command.WithAPIKey(cfg.APIKey),
		command.WithTimeout(cfg.HTTPTimeout))
	if err != nil {
		return err
	}

	prom := metrics.NewProm(metricsNamespace)
	recorders := importer.Recorders{importer.LogRecorder(), importer.MetricsRecorder(prom)}
	if ledger := openLedger(ctx, cfg); ledger != nil {
		defer ledger.Close()
		recorders = append(recorders, importer.LedgerRecorder(ledger))
	}
	if nb := openBus(cfg); nb != nil {
		defer nb.Close()
		recorders = append(recorders, importer.EventRecorder(nb, cfg.NatsSubject))
	}

	im, err := importer.New(client, importer.Options{
		Root:              cfg.Root,
		HonorFactsVersion: cfg.HonorFactsVersion,
		Recorder:          recorders,
	})
	if err != nil {
		return err
	}
	logging.Info("cordum-import", "importing", "archive", infile, "endpoint", client.BaseURL())
	summary, runErr := im.Run(ctx, infile)
	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), summary.String())
		pushMetrics(ctx, cfg, prom, summary.RunID)
	}
	return runErr
}

func openLedger(ctx context.Context, cfg *config.Import) *failures.Ledger {
	if cfg.RedisURL == "" {
		return nil
	}
	client, err := redisutil.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logging.Warn("cordum-import", "failure ledger disabled", "error", err)
		return nil
	}
	ledger, err := failures.NewLedger(client, 0)
	if err != nil {
		_ = client.Close()
		logging.Warn("cordum-import", "failure ledger disabled", "error", err)
		return nil
	}
	return ledger
}

func openBus(cfg *config.Import) *bus.NatsBus {
	if cfg.NatsURL == "" {
		return nil
	}
	nb, err := bus.NewNatsBus(cfg.NatsURL, cfg.NatsSubject)
	if err != nil {
		logging.Warn("cordum-import", "result events disabled", "error", err)
		return nil
	}
	return nb
}

func pushMetrics(ctx context.Context, cfg *config.Import, prom *metrics.Prom, runID string) {
	if cfg.PushgatewayURL == "" {
		return
	}
	if err := prom.Push(ctx, cfg.PushgatewayURL, pushJob, map[string]string{"run": runID}); err != nil {
		logging.Warn("cordum-import", "metrics push failed", "url", cfg.PushgatewayURL, "error", err)
	}
}
