package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/kpitelemetry/internal/adapters/cache"
	"github.com/zatekoja/kpitelemetry/internal/adapters/database"
	"github.com/zatekoja/kpitelemetry/internal/adapters/events"
	"github.com/zatekoja/kpitelemetry/internal/application/services"
	"github.com/zatekoja/kpitelemetry/internal/domain/providers"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/clients/redis"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/observability"
	"github.com/zatekoja/kpitelemetry/internal/infrastructure/supervisor"
	"github.com/zatekoja/kpitelemetry/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	observability.InitLogger(cfg.App.Name, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	pgClient, err := postgres.NewClient(ctx, &cfg.Database, observability.ComponentLogger("postgres"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	if err := database.EnsureSchema(ctx, pgClient); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare schema")
	}

	var (
		cacheProvider providers.CacheProvider
		eventBus      providers.EventBus
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis, observability.ComponentLogger("redis"))
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, falling back to in-process cache and bus")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient, observability.ComponentLogger("event-bus"))
		}
	}
	if cacheProvider == nil {
		cacheProvider = cache.NewMemoryAdapter()
		eventBus = events.NewLocalEventBus(observability.ComponentLogger("event-bus"))
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	sink := database.NewBreakerSink(
		database.NewEventSinkAdapter(pgClient),
		cfg.Sink,
		observability.ComponentLogger("sink"),
		metrics,
	)

	collector := services.NewCollector(sink, eventBus, cfg.Collector, observability.ComponentLogger("collector"), metrics)

	pipeline, err := services.NewPipeline(cfg.Pipeline, services.PipelineDeps{
		Sink:     sink,
		Sessions: database.NewSessionEventAdapter(pgClient),
		Cache:    cacheProvider,
		Metrics:  metrics,
	}, observability.ComponentLogger("pipeline"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pipeline")
	}

	tree := supervisor.NewTree(observability.ComponentLogger("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddIngestService(collector)
	tree.AddIngestService(services.NewEventForwarder(eventBus, pipeline, observability.ComponentLogger("forwarder")))
	tree.AddProcessingService(pipeline)
	if cfg.SystemMonitor.Enabled {
		tree.AddProcessingService(services.NewSystemMonitor(collector, cfg.SystemMonitor.Interval, observability.ComponentLogger("system-monitor")))
	}

	log.Info().
		Int("collector_batch_size", cfg.Collector.BatchSize).
		Dur("flush_interval", cfg.Collector.FlushInterval).
		Int("pipeline_batch_size", cfg.Pipeline.BatchSize).
		Strs("windows", cfg.Pipeline.Windows).
		Msg("KPI telemetry started")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Supervisor stopped unexpectedly")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, u := range unstopped {
			log.Warn().Str("service", u.Name).Msg("Service did not stop in time")
		}
	}

	status := collector.QueueStatus()
	stats := pipeline.ProcessingStats()
	log.Info().
		Int("collector_queue", status.QueueLength).
		Int64("processed", stats.TotalProcessed).
		Int64("failed", stats.TotalFailed).
		Str("sink_breaker", sink.State()).
		Msg("KPI telemetry stopped")
}
