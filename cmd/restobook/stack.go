package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"restobook/internal/capacity"
	"restobook/internal/config"
	"restobook/internal/database"
	"restobook/internal/domain"
	"restobook/internal/events"
	"restobook/internal/logging"
	"restobook/internal/metrics"
	"restobook/internal/repository"
	"restobook/internal/service"
	"restobook/internal/timegraph"
	"restobook/internal/workhours"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// schedulerStack is everything that shares the live time graph.
type schedulerStack struct {
	loc      *time.Location
	db       *database.DB
	redis    *redis.Client
	graph    *timegraph.Graph
	bus      *events.EventBus
	bookings *service.BookingService
}

func (s *schedulerStack) Close() error {
	_ = repository.Close(s.redis)
	return s.db.Close()
}

// buildScheduler opens the store and builds the graph from it. Failing to build
// the graph is fatal: the process must not answer requests from an empty grid.
func buildScheduler(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*schedulerStack, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
			return nil, err
		}
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	db.SetLocation(loc)

	hours, err := workhours.FromConfig(cfg.Worktime)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	resolver := capacity.NewResolver(db)
	graph := timegraph.New(db, resolver, hours, timegraph.PolicyFromConfig(cfg.Scheduler), logging.Component(logger, "timegraph"))

	redisClient, state := initState(ctx, cfg, logger)
	bus := events.NewEventBus()

	bookings := service.NewBookingService(service.Dependencies{
		Store:    db,
		Graph:    graph,
		Capacity: resolver,
		State:    state,
		Events:   bus,
		Hours:    hours,
		Location: loc,
	}, cfg.Scheduler, logging.Component(logger, "booking"))

	stack := &schedulerStack{loc: loc, db: db, redis: redisClient, graph: graph, bus: bus, bookings: bookings}

	if err := bookings.Refresh(ctx); err != nil {
		_ = stack.Close()
		return nil, fmt.Errorf("build time graph: %w", err)
	}
	return stack, nil
}

// initState prefers redis and falls back to process memory while redis is down.
func initState(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.RequestStateRepository) {
	fallback := repository.NewMemoryStateRepository()
	if cfg.Redis.Address == "" {
		logger.Info().Msg("redis not configured, request state kept in memory")
		return nil, fallback
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisStateRepository(redisClient)
	return redisClient, repository.NewFailoverStateRepository(primary, fallback, logging.Component(logger, "state"))
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
