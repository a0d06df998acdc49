package di

import (
	"context"
	"time"

	"github.com/sgknoldus/movie-booking-sub000/internal/handler"
	"github.com/sgknoldus/movie-booking-sub000/internal/lock"
	"github.com/sgknoldus/movie-booking-sub000/internal/metrics"
	"github.com/sgknoldus/movie-booking-sub000/internal/payment"
	"github.com/sgknoldus/movie-booking-sub000/internal/repository"
	"github.com/sgknoldus/movie-booking-sub000/internal/service"
	"github.com/sgknoldus/movie-booking-sub000/internal/worker"
	"github.com/sgknoldus/movie-booking-sub000/pkg/config"
	"github.com/sgknoldus/movie-booking-sub000/pkg/database"
	"github.com/sgknoldus/movie-booking-sub000/pkg/kafka"
	"github.com/sgknoldus/movie-booking-sub000/pkg/redis"
)

// Container holds all dependencies for the booking service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
	Metrics  *metrics.Metrics

	// Repositories
	BookingRepo repository.BookingRepository
	OutboxRepo  repository.OutboxRepository
	SeatRepo    repository.SeatRepository

	// Collaborators
	LockManager   service.LockManager
	PaymentClient payment.Client

	// Services
	BookingService *service.BookingService

	// Workers
	OutboxDispatcher *worker.OutboxDispatcher

	// Handlers
	BookingHandler *handler.BookingHandler
	HealthHandler  *handler.HealthHandler
}

// ContainerConfig contains the infrastructure handles the container wires up
type ContainerConfig struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
}

// NewContainer builds the dependency graph from configuration and
// already-connected infrastructure
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	m, err := metrics.New()
	if err != nil {
		return nil, err
	}

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Metrics:  m,
	}

	// Repositories
	pool := cfg.DB.Pool()
	c.BookingRepo = repository.NewBookingRepository(pool)
	c.OutboxRepo = repository.NewOutboxRepository(pool)
	c.SeatRepo = repository.NewSeatRepository(pool)

	// Seat lock
	c.LockManager = service.NewRedisLockManager(
		lock.NewManager(cfg.Redis, cfg.Config.Booking.LockPollInterval))

	// Payment gateway
	if cfg.Config.Payment.UseMock {
		c.PaymentClient = payment.NewMockClient(cfg.Config.Payment.MockFailureRate, 0)
	} else {
		c.PaymentClient = payment.NewHTTPClient(&payment.HTTPConfig{
			BaseURL: cfg.Config.Payment.BaseURL,
			Timeout: cfg.Config.Payment.Timeout,
		})
	}

	// Services
	c.BookingService = service.NewBookingService(
		c.BookingRepo,
		c.OutboxRepo,
		c.SeatRepo,
		c.LockManager,
		c.PaymentClient,
		&service.Config{
			LockWaitTimeout: cfg.Config.Booking.LockWaitTimeout,
			LockLeaseTime:   cfg.Config.Booking.LockLeaseTime,
		},
		c.Metrics,
	)

	// Outbox dispatcher (embedded in the API process; also runs standalone,
	// see cmd/outbox-dispatcher)
	if cfg.Producer != nil {
		c.OutboxDispatcher = worker.NewOutboxDispatcher(
			c.OutboxRepo,
			cfg.Producer,
			DispatcherConfig(cfg.Config),
			c.Metrics,
		)
	}

	// Handlers
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.HealthHandler = handler.NewHealthHandler(cfg.Config.App.Name, healthChecks(c))

	return c, nil
}

// DispatcherConfig maps the application config onto dispatcher timings
func DispatcherConfig(cfg *config.Config) *worker.Config {
	return &worker.Config{
		Topic:            cfg.Kafka.BookingEventTopic,
		DispatchInterval: cfg.Outbox.DispatchInterval,
		RetryInterval:    cfg.Outbox.RetryInterval,
		CleanupInterval:  cfg.Outbox.CleanupInterval,
		BatchSize:        cfg.Outbox.BatchSize,
		MaxRetries:       cfg.Outbox.MaxRetries,
		RetryBackoff:     cfg.Outbox.RetryBackoff,
		Retention:        time24h(cfg.Outbox.RetentionDays),
	}
}

func time24h(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func healthChecks(c *Container) map[string]handler.HealthChecker {
	checks := map[string]handler.HealthChecker{
		"postgres": c.DB.HealthCheck,
		"redis":    c.Redis.HealthCheck,
	}
	if c.Producer != nil {
		checks["kafka"] = func(ctx context.Context) error { return c.Producer.Ping(ctx) }
	}
	return checks
}
