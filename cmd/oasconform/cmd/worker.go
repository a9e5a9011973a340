package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/oasconform/internal/core/server"
	"github.com/solatis/oasconform/internal/rules"
	"github.com/solatis/oasconform/internal/schema"
	"github.com/solatis/oasconform/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the payload and report queue workers",
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().Duration("interval", time.Second, "queue polling interval")
	workerCmd.Flags().String("admin-addr", ":9090", "admin HTTP address for /metrics and /healthz")
	workerCmd.Flags().String("locale", "en", "validation message locale")
	workerCmd.Flags().Bool("all-errors", false, "keep every raw validation error instance")
	workerCmd.Flags().String("rules-file", "", "business rules file evaluated after schema validation")
	workerCmd.Flags().Float64("replace-rate", worker.DefaultReplaceRate, "chance a repeated error replaces the report example")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	d, err := openDeps(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	validator := schema.NewValidator(
		schema.WithAllErrors(cfg.Validator.AllErrors),
		schema.WithLocale(cfg.Validator.Locale),
	)
	resolver := schema.NewResolver(logger, validator)

	var payloadOpts []worker.PayloadOption
	if cfg.Rules.File != "" {
		ruleSet, err := rules.LoadFile(cfg.Rules.File)
		if err != nil {
			return err
		}
		payloadOpts = append(payloadOpts, worker.WithRules(rules.NewEngine(logger), ruleSet))
		logger.Info().Int("rules", len(ruleSet)).Str("file", cfg.Rules.File).Msg("Business rules loaded")
	}

	sampler := worker.NewRateSampler(cfg.Report.ExampleReplaceRate, uint64(time.Now().UnixNano()))
	pollerOpts := []worker.PollerOption{
		worker.WithInterval(cfg.Worker.CheckQueueInterval),
		worker.WithMetrics(d.metrics),
	}
	payloadPoller := worker.NewPoller(d.payloadQueue,
		worker.NewPayloadWorker(d.payloads, resolver, logger, payloadOpts...), logger, pollerOpts...)
	reportPoller := worker.NewPoller(d.reportQueue,
		worker.NewReportWorker(d.reports, d.payloads, logger, worker.WithSampler(sampler)), logger, pollerOpts...)
	admin := server.NewAdminServer(cfg.Admin.Addr, d.registry, d.ping, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("payload_queue", cfg.Worker.PayloadQueue).Str("report_queue", cfg.Worker.ReportQueue).Msg("Starting workers")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(payloadPoller.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(reportPoller.Run(gctx)) })
	g.Go(admin.Start)
	g.Go(func() error { return shutdownAfter(gctx, 10*time.Second, admin.Shutdown) })

	err = g.Wait()
	logger.Info().Msg("Workers stopped")
	return err
}
