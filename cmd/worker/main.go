package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lifecart/orderflow-backend/internal/catalog"
	"github.com/lifecart/orderflow-backend/internal/fulfillment"
	"github.com/lifecart/orderflow-backend/internal/orders"
	"github.com/lifecart/orderflow-backend/pkg/config"
	"github.com/lifecart/orderflow-backend/pkg/db"
	"github.com/lifecart/orderflow-backend/pkg/logger"
	"github.com/lifecart/orderflow-backend/pkg/mailer"
	"github.com/lifecart/orderflow-backend/pkg/migrate"
	"github.com/lifecart/orderflow-backend/pkg/payment"
	"github.com/lifecart/orderflow-backend/pkg/queue"
	"github.com/lifecart/orderflow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics := queue.NewMetrics(registry)

	jobQueue, err := queue.NewRedis(redisClient.Raw(), queue.RedisOptions{
		Namespace:      cfg.Queue.Namespace,
		DequeueTimeout: cfg.Queue.DequeueTimeout,
		RetryBaseDelay: cfg.Queue.RetryBaseDelay,
		RetryMaxDelay:  cfg.Queue.RetryMaxDelay,
		Metrics:        metrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create job queue", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())

	gateway, err := payment.NewGateway(cfg.Payment, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}
	mail, err := mailer.NewLogging(logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mailer", err)
		os.Exit(1)
	}

	paymentStage, err := fulfillment.NewPaymentStage(ordersRepo, gateway, jobQueue, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment stage", err)
		os.Exit(1)
	}
	inventoryStage, err := fulfillment.NewInventoryStage(ordersRepo, catalogRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory stage", err)
		os.Exit(1)
	}
	notificationStage, err := fulfillment.NewNotificationStage(ordersRepo, mail, cfg.Email, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification stage", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config: cfg,
		Logger: logg,
		DB:     dbClient,
		Redis:  redisClient,
		Queue:  jobQueue,
		Stages: fulfillment.Stages{
			Payment:      paymentStage,
			Inventory:    inventoryStage,
			Notification: notificationStage,
		},
		Metrics:  metrics,
		Registry: registry,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"concurrency": cfg.Worker.Concurrency,
	})
	logg.Info(ctx, "starting fulfillment worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
