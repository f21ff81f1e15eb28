package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/audit"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/clock"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lock"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/policy"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/rules"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/sla"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
	"github.com/spec-kit/ticket-lifecycle/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	deps := map[string]handlers.Pinger{}

	var store repository.Store
	switch cfg.App.StorageDriver {
	case config.StoragePostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.Migrate(ctx, cfg.Postgres, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		store = repository.NewPostgresStore(pg.PoolHandle())
		deps["postgres"] = store
	default:
		logger.Warn("using in-memory storage; state is lost on restart")
		store = repository.NewMemoryStore()
	}

	var locks lock.Locker = lock.NewKeyed()
	if cfg.Redis.Addr != "" {
		redis, err := persistence.NewRedis(cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to configure redis", zap.Error(err))
		}
		defer redis.Close()
		deps["redis"] = redis
		if cfg.Lock.Driver == config.LockRedis {
			locks = persistence.NewRedisLocker(redis.Client, cfg.Lock.TTL(), logger)
		}
	}

	catalog := policy.Default()
	if cfg.SLA.PolicyFile != "" {
		if catalog, err = policy.LoadFile(cfg.SLA.PolicyFile); err != nil {
			logger.Fatal("failed to load sla policies", zap.String("file", cfg.SLA.PolicyFile), zap.Error(err))
		}
	}
	table := rules.Default()
	if cfg.SLA.RulesFile != "" {
		if table, err = rules.LoadFile(cfg.SLA.RulesFile); err != nil {
			logger.Fatal("failed to load transition rules", zap.String("file", cfg.SLA.RulesFile), zap.Error(err))
		}
	}

	dispatcher := events.NewInMemoryDispatcher()
	if cfg.Kafka.Enabled() {
		sink := events.NewKafkaSink(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), logger)
		sink.Register(dispatcher)
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn("kafka writer close", zap.Error(err))
			}
		}()
		logger.Info("publishing lifecycle events to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	realClock := clock.Real()
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Engine: workflow.NewEngine(workflow.Config{
			Store:       store,
			Locks:       locks,
			Rules:       table,
			Policies:    catalog,
			Clock:       realClock,
			Logger:      logger,
			LockTimeout: cfg.Lock.Timeout(),
		}),
		Tracker:    sla.NewTracker(store, locks, catalog, logger, cfg.Lock.Timeout()),
		Audit:      audit.NewLog(store, cfg.SLA.AuditPageSize),
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      realClock,
		Logger:     logger,
	})

	poller, err := worker.NewBreachPoller(lifecycle, cfg.SLA.BreachPollSchedule, 30*time.Second, logger)
	if err != nil {
		logger.Fatal("failed to schedule breach poller", zap.Error(err))
	}
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		_ = poller.Start(ctx)
	}()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Lifecycle:      handlers.NewLifecycleHandler(lifecycle),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer)),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	<-pollerDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
