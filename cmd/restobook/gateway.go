package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"restobook/internal/api"
	"restobook/internal/broker"
	"restobook/internal/logging"

	"github.com/spf13/cobra"
)

func newGatewayCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the guest HTTP API that forwards bookings to the scheduler over the broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd.Context(), root)
		},
	}
}

func runGateway(parent context.Context, root *rootOptions) error {
	cfg, logger, closer, err := loadConfigAndLogger(root, "gateway")
	if err != nil {
		return err
	}
	defer closeQuietly(closer)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting gateway. Check your config.")
	}

	loc, err := cfg.App.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	conn, err := broker.Dial(cfg.Broker.URL)
	if err != nil {
		logger.Error().Err(err).Msg("broker connection failed")
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	client, err := broker.NewClient(ch, cfg.Broker, logging.Component(logger, "broker"))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	goRun := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	startHTTP(ctx, cfg, api.Options{Gateway: client, Location: loc}, logger, goRun)
	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("gateway started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	wg.Wait()
	logger.Info().Msg("gateway stopped")
	return nil
}
