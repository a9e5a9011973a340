package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/solatis/oasconform/internal/core/api"
	"github.com/solatis/oasconform/internal/core/auth"
	"github.com/solatis/oasconform/internal/core/config"
	"github.com/solatis/oasconform/internal/core/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC conformance API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().String("admin-addr", ":9090", "admin HTTP address for /metrics and /healthz")
	serveCmd.Flags().Bool("keep-payloads", false, "store response bodies with payload records")
	serveCmd.Flags().Int("sync-wait-tries", 30, "status polls before a sync AddPayload gives up")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	keys, err := config.APIKeys()
	if err != nil {
		return fmt.Errorf("failed to load API keys: %w", err)
	}
	authenticator, err := auth.NewAuthenticator(keys, logger)
	if err != nil {
		return err
	}

	d, err := openDeps(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	svc, err := api.NewService(d.payloads, d.reports, d.payloadQueue, d.reportQueue, cfg.Ingest, logger,
		api.WithMetrics(d.metrics))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	grpcServer, err := server.NewGRPCServer(cfg.API.Address(), api.NewHandler(svc), authenticator, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	admin := server.NewAdminServer(cfg.Admin.Addr, d.registry, d.ping, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("addr", cfg.API.Address()).Int("api_keys", len(keys)).Msg("Starting conformance API")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(grpcServer.Start)
	g.Go(admin.Start)
	g.Go(func() error { return shutdownAfter(gctx, 35*time.Second, grpcServer.Shutdown) })
	g.Go(func() error { return shutdownAfter(gctx, 10*time.Second, admin.Shutdown) })

	err = g.Wait()
	logger.Info().Msg("Shut down")
	return err
}
