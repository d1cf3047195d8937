package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"restobook/internal/api"
	"restobook/internal/broker"
	"restobook/internal/config"
	"restobook/internal/database"
	"restobook/internal/export"
	"restobook/internal/logging"
	"restobook/internal/notify"
	"restobook/internal/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var errBrokerLost = errors.New("broker connection lost")

func newSchedulerCmd(root *rootOptions) *cobra.Command {
	var standalone bool

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the time graph: consume booking commands from the broker",
		Long: "Builds the time graph from the store and answers booking commands from the broker.\n" +
			"With --standalone the broker is skipped and the HTTP API calls the scheduler directly.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduler(cmd.Context(), root, standalone)
		},
	}
	cmd.Flags().BoolVar(&standalone, "standalone", false, "serve HTTP bookings in-process without the broker")
	return cmd
}

func runScheduler(parent context.Context, root *rootOptions, standalone bool) error {
	cfg, logger, closer, err := loadConfigAndLogger(root, "scheduler")
	if err != nil {
		return err
	}
	defer closeQuietly(closer)

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, logger)

	stack, err := buildScheduler(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler init failed")
		return err
	}
	defer stack.Close()

	var wg sync.WaitGroup
	goRun := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	if cfg.Telegram.BotToken != "" {
		bot, err := notify.NewBot(cfg.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram unavailable, manager alerts disabled")
		} else {
			notifier := notify.NewManagerNotifier(bot, cfg.Telegram.ManagerIDs, stack.loc, logging.Component(logger, "notify"))
			notifier.Attach(stack.bus)
			goRun(notifier.Start)
		}
	}

	maintenance, err := worker.NewMaintenance(stack.bookings, cfg.Sweeper, stack.loc, logging.Component(logger, "maintenance"))
	if err != nil {
		return err
	}
	goRun(maintenance.Start)

	if cfg.Backup.Enabled {
		goRun(database.NewBackupService(stack.db, cfg.Backup, logging.Component(logger, "backup")).Start)
	}

	opts := api.Options{
		Schedule: stack.bookings,
		Exporter: export.New(stack.bookings, cfg.Exports.Path, logging.Component(logger, "export")),
		Location: stack.loc,
	}

	shutdown := func() {
		stop()
		wg.Wait()
	}

	if standalone {
		opts.Gateway = api.NewLocalGateway(stack.bookings)
		startHTTP(ctx, cfg, opts, logger, goRun)
		logger.Info().Msg("scheduler started in standalone mode")
		<-ctx.Done()
		logger.Info().Msg("shutdown signal received")
		shutdown()
	} else {
		if cfg.API.Enabled {
			startHTTP(ctx, cfg, opts, logger, goRun)
		}
		if err := serveBroker(ctx, cfg, stack, logger, goRun, shutdown); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped with error")
			return err
		}
	}

	logger.Info().Msg("scheduler stopped")
	return nil
}

// serveBroker blocks until ctx is done or the broker connection is lost.
// Background workers are shut down before the connection closes.
func serveBroker(
	ctx context.Context,
	cfg *config.Config,
	stack *schedulerStack,
	logger *zerolog.Logger,
	goRun func(func(context.Context)),
	shutdown func(),
) error {
	conn, err := broker.Dial(cfg.Broker.URL)
	if err != nil {
		shutdown()
		return err
	}
	defer conn.Close()
	defer shutdown()

	pubCh, err := conn.Channel()
	if err != nil {
		return err
	}
	publisher, err := broker.NewEventPublisher(pubCh, cfg.Broker.EventExchange)
	if err != nil {
		return err
	}

	retry := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	relay := worker.NewEventRelay(publisher, stack.redis, retry, logging.Component(logger, "event-relay"))
	relay.Attach(stack.bus)
	goRun(relay.Start)

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	server := broker.NewServer(ch, stack.bookings, cfg.Broker, logging.Component(logger, "broker"))

	logger.Info().
		Str("request_queue", cfg.Broker.RequestQueue).
		Str("confirm_queue", cfg.Broker.ConfirmQueue).
		Msg("scheduler consuming booking commands")
	if err := server.Start(ctx); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return errBrokerLost
	}
	return nil
}

func startHTTP(ctx context.Context, cfg *config.Config, opts api.Options, logger *zerolog.Logger, goRun func(func(context.Context))) {
	httpServer := api.NewHTTPServer(cfg.API, opts, logging.Component(logger, "http"))
	goRun(func(context.Context) {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	})
	goRun(func(ctx context.Context) {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	})
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
