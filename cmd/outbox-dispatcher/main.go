// Standalone outbox dispatcher replica. The batch queries use row locks with
// SKIP LOCKED, so any number of replicas can run next to the embedded
// dispatcher in the API process without double-draining.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sgknoldus/movie-booking-sub000/internal/di"
	"github.com/sgknoldus/movie-booking-sub000/internal/metrics"
	"github.com/sgknoldus/movie-booking-sub000/internal/repository"
	"github.com/sgknoldus/movie-booking-sub000/internal/worker"
	"github.com/sgknoldus/movie-booking-sub000/pkg/config"
	"github.com/sgknoldus/movie-booking-sub000/pkg/database"
	"github.com/sgknoldus/movie-booking-sub000/pkg/kafka"
	"github.com/sgknoldus/movie-booking-sub000/pkg/logger"
	"github.com/sgknoldus/movie-booking-sub000/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		ServiceName: "outbox-dispatcher",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Outbox Dispatcher...", "version", cfg.App.Version)

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "outbox-dispatcher",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Fatal("Failed to initialize telemetry", "error", err)
	}
	defer telemetry.Shutdown(context.Background())

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("Database connection failed", "error", err)
	}
	defer db.Close()
	appLog.Info("Database connected")

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      "outbox-dispatcher",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("Kafka connection failed", "error", err)
	}
	defer producer.Close()
	appLog.Info("Kafka connected")

	m, err := metrics.New()
	if err != nil {
		appLog.Fatal("Failed to create metrics", "error", err)
	}

	dispatcher := worker.NewOutboxDispatcher(
		repository.NewOutboxRepository(db.Pool()),
		producer,
		di.DispatcherConfig(cfg),
		m,
	)

	dispatcher.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down dispatcher...")

	dispatcher.Stop()
	appLog.Info("Dispatcher exited gracefully")
}
