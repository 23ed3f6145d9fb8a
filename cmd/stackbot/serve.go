package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"stackbot-deployment/internal/config"
	"stackbot-deployment/internal/database"
	"stackbot-deployment/internal/dockercloud"
	"stackbot-deployment/internal/github"
	"stackbot-deployment/internal/logger"
	"stackbot-deployment/internal/newrelic"
	"stackbot-deployment/internal/orchestrator"
	"stackbot-deployment/internal/server"
	"stackbot-deployment/internal/stack"
)

const (
	deliveryRetentionDays = 7
	shutdownTimeout       = 30 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	appLogger := logger.Initialize()
	log := logger.WithModule("main")
	appLogger.Info("Starting stackbot deployment service")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Info("Configuration loaded successfully")

	nrApp, err := newrelic.Initialize(cfg)
	if err != nil {
		log.WithError(err).Warn("Failed to initialize New Relic, continuing without monitoring")
	}

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if pruned, err := database.PruneDeliveries(db, deliveryRetentionDays); err != nil {
		log.WithError(err).Warn("Failed to prune old deliveries")
	} else if pruned > 0 {
		log.WithField("pruned", pruned).Info("Pruned old deliveries")
	}

	cloud := dockercloud.NewClient(cfg.DockerCloudURL, cfg.DockerCloudUser, cfg.DockerCloudAPIKey)
	controller := stack.NewController(cloud, stack.WithPolling(cfg.PollInterval, cfg.PollRetries))
	gh := github.NewClient(cfg.GitHubURL, cfg.GitHubToken)
	orch := orchestrator.New(gh, gh, controller)

	srv := server.NewServer(cfg, db, nrApp, orch)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Server shutdown failed")
		}
	}

	if nrApp != nil {
		nrApp.Shutdown(10 * time.Second)
	}
	return nil
}
