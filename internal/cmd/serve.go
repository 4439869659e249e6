package cmd

import (
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/mediagrab/internal/observability"
	"github.com/3leaps/mediagrab/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and download workers",
	Long: `Start the mediagrab service: the REST API for submitting and tracking
download jobs plus the in-process worker pool that executes them.

The server shuts down gracefully on SIGINT/SIGTERM, draining in-flight
downloads before exit.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := buildAppFrom(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	a.orch.Start(ctx)

	srv := server.New(a.cfg.Server, server.Deps{
		Store:        a.store,
		Orchestrator: a.orch,
		Registry:     a.registry,
		Artifacts:    a.artifacts,
		Logger:       logger,
		AdminToken:   a.cfg.Admin.Token,
	})

	logger.Info("mediagrab starting",
		zap.String("host", a.cfg.Server.Host),
		zap.Int("port", srv.Port()),
		zap.Int("workers", a.cfg.Download.Workers),
		zap.String("storage_backend", a.cfg.Storage.Backend))

	err = srv.ListenAndServe(ctx)

	// Let workers finish persisting their terminal states before the
	// store closes.
	a.orch.Wait()

	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	logger.Info("shutdown complete")
	return nil
}
