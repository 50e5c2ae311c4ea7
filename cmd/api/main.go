package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feedworks/refresh-engine/internal/config"
	"github.com/feedworks/refresh-engine/internal/coordination"
	"github.com/feedworks/refresh-engine/internal/handler"
	"github.com/feedworks/refresh-engine/internal/infra/postgresql"
	"github.com/feedworks/refresh-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/feedworks/refresh-engine/internal/infra/redis"
	"github.com/feedworks/refresh-engine/internal/observability"
	"github.com/feedworks/refresh-engine/internal/provider"
	"github.com/feedworks/refresh-engine/internal/queue"
	"github.com/feedworks/refresh-engine/internal/repository"
	"github.com/feedworks/refresh-engine/internal/service"
	"github.com/feedworks/refresh-engine/internal/status"
	"github.com/feedworks/refresh-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer broker.Close()

	publisher := queue.NewRabbitMQPublisher(broker)
	defer publisher.Close()

	store, err := status.NewRedisStore(rdb)
	if err != nil {
		logger.Fatal("status store initialization failed", zap.Error(err))
	}

	registry, err := coordination.NewRegistry(store, cfg.StreamTimeout(), logger)
	if err != nil {
		logger.Fatal("coordination registry initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	feedRepo := repository.NewGormFeedRepo(db)
	historyRepo := repository.NewGormBatchHistoryRepo(db)

	var callback *provider.CompletionWebhook
	if cfg.CompletionWebhookURL != "" {
		callback, err = provider.NewCompletionWebhook(cfg.CompletionWebhookURL)
		if err != nil {
			logger.Fatal("completion webhook initialization failed", zap.Error(err))
		}
	}

	producer, err := service.NewProducer(store, publisher, limiter, cfg.StatusTTL(), logger, metrics)
	if err != nil {
		logger.Fatal("producer initialization failed", zap.Error(err))
	}

	checker, err := service.NewStaleChecker(feedRepo, cfg.StaleAfter(), logger)
	if err != nil {
		logger.Fatal("stale checker initialization failed", zap.Error(err))
	}

	var receiver *service.Receiver
	if callback != nil {
		receiver, err = service.NewReceiver(store, registry, historyRepo, callback, cfg.StatusTTL(), logger, metrics)
	} else {
		receiver, err = service.NewReceiver(store, registry, historyRepo, nil, cfg.StatusTTL(), logger, metrics)
	}
	if err != nil {
		logger.Fatal("completion receiver initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewRefreshScheduler(
		feedRepo,
		producer,
		cfg.SchedulerInterval(),
		cfg.StaleAfter(),
		cfg.SchedulerScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("refresh scheduler initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "refresh-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, broker)
	app.Get("/metrics", metrics.FiberHandler())

	v1 := app.Group("/v1", handler.APIKeyMiddleware(cfg.APIKey))
	if err := handler.RegisterRefreshRoutes(v1, producer, checker, receiver); err != nil {
		logger.Fatal("refresh route registration failed", zap.Error(err))
	}
	if err := handler.RegisterStreamRoutes(v1, registry, store, handler.StreamConfig{
		PushEnabled:   cfg.PushEnabled,
		PollInterval:  cfg.PollInterval(),
		MaxPolls:      cfg.MaxPolls,
		StreamTimeout: cfg.StreamTimeout(),
	}, logger, metrics); err != nil {
		logger.Fatal("stream route registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("refresh-engine api started",
			zap.Int("port", cfg.APIPort),
			zap.Bool("pushEnabled", cfg.PushEnabled),
		)
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	group.Go(func() error {
		return scheduler.Start(groupCtx)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		logger.Fatal("refresh-engine api stopped", zap.Error(err))
	}
	logger.Info("refresh-engine api stopped")
}
