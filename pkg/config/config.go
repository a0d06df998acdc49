package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	OTel      OTelConfig
	Payment   PaymentConfig
	Booking   BookingConfig
	Outbox    OutboxConfig
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string
	Environment string // development, staging, production
	Debug       bool
	Version     string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	BookingEventTopic string
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret string
	Issuer string
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool
	ServiceName   string
	CollectorAddr string
	SampleRatio   float64
}

// PaymentConfig holds the payment service client settings
type PaymentConfig struct {
	BaseURL string
	Timeout time.Duration
	// UseMock swaps the HTTP client for the in-process mock gateway
	UseMock bool
	// MockFailureRate (0-1) makes the mock decline a fraction of charges
	MockFailureRate float64
}

// BookingConfig holds seat-lock saga settings
type BookingConfig struct {
	LockWaitTimeout  time.Duration
	LockLeaseTime    time.Duration
	LockPollInterval time.Duration
}

// OutboxConfig holds outbox dispatcher settings
type OutboxConfig struct {
	DispatchInterval time.Duration
	RetryInterval    time.Duration
	CleanupInterval  time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoff     time.Duration
	RetentionDays    int
}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	return LoadWithPath(".env")
}

// LoadWithPath loads configuration from a specific env file path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	// The .env file is optional; environment variables always apply.
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "movie-booking")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8083)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Booking database
	v.SetDefault("BOOKING_DATABASE_HOST", "localhost")
	v.SetDefault("BOOKING_DATABASE_PORT", 5432)
	v.SetDefault("BOOKING_DATABASE_USER", "postgres")
	v.SetDefault("BOOKING_DATABASE_PASSWORD", "postgres")
	v.SetDefault("BOOKING_DATABASE_DBNAME", "booking_db")
	v.SetDefault("BOOKING_DATABASE_SSLMODE", "disable")
	v.SetDefault("BOOKING_DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("BOOKING_DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("BOOKING_DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("BOOKING_DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "booking-service")
	v.SetDefault("KAFKA_BOOKING_EVENT_TOPIC", "booking-events")

	// JWT defaults
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ISSUER", "movie-booking")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "booking-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Payment client defaults
	v.SetDefault("PAYMENT_BASE_URL", "http://localhost:8084")
	v.SetDefault("PAYMENT_TIMEOUT", "30s")
	v.SetDefault("PAYMENT_USE_MOCK", false)
	v.SetDefault("PAYMENT_MOCK_FAILURE_RATE", 0.0)

	// Seat-lock saga defaults
	v.SetDefault("BOOKING_LOCK_WAIT_TIMEOUT", "10s")
	v.SetDefault("BOOKING_LOCK_LEASE_TIME", "300s")
	v.SetDefault("BOOKING_LOCK_POLL_INTERVAL", "100ms")

	// Outbox dispatcher defaults
	v.SetDefault("OUTBOX_DISPATCH_INTERVAL", "5s")
	v.SetDefault("OUTBOX_RETRY_INTERVAL", "5m")
	v.SetDefault("OUTBOX_CLEANUP_INTERVAL", "24h")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)
	v.SetDefault("OUTBOX_MAX_RETRIES", 3)
	v.SetDefault("OUTBOX_RETRY_BACKOFF", "1h")
	v.SetDefault("OUTBOX_RETENTION_DAYS", 7)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("BOOKING_DATABASE_HOST")
	cfg.Database.Port = v.GetInt("BOOKING_DATABASE_PORT")
	cfg.Database.User = v.GetString("BOOKING_DATABASE_USER")
	cfg.Database.Password = v.GetString("BOOKING_DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("BOOKING_DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("BOOKING_DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("BOOKING_DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("BOOKING_DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("BOOKING_DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("BOOKING_DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.BookingEventTopic = v.GetString("KAFKA_BOOKING_EVENT_TOPIC")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Payment
	cfg.Payment.BaseURL = v.GetString("PAYMENT_BASE_URL")
	cfg.Payment.Timeout = v.GetDuration("PAYMENT_TIMEOUT")
	cfg.Payment.UseMock = v.GetBool("PAYMENT_USE_MOCK")
	cfg.Payment.MockFailureRate = v.GetFloat64("PAYMENT_MOCK_FAILURE_RATE")

	// Booking saga
	cfg.Booking.LockWaitTimeout = v.GetDuration("BOOKING_LOCK_WAIT_TIMEOUT")
	cfg.Booking.LockLeaseTime = v.GetDuration("BOOKING_LOCK_LEASE_TIME")
	cfg.Booking.LockPollInterval = v.GetDuration("BOOKING_LOCK_POLL_INTERVAL")

	// Outbox
	cfg.Outbox.DispatchInterval = v.GetDuration("OUTBOX_DISPATCH_INTERVAL")
	cfg.Outbox.RetryInterval = v.GetDuration("OUTBOX_RETRY_INTERVAL")
	cfg.Outbox.CleanupInterval = v.GetDuration("OUTBOX_CLEANUP_INTERVAL")
	cfg.Outbox.BatchSize = v.GetInt("OUTBOX_BATCH_SIZE")
	cfg.Outbox.MaxRetries = v.GetInt("OUTBOX_MAX_RETRIES")
	cfg.Outbox.RetryBackoff = v.GetDuration("OUTBOX_RETRY_BACKOFF")
	cfg.Outbox.RetentionDays = v.GetInt("OUTBOX_RETENTION_DAYS")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" || c.Database.DBName == "" {
		return fmt.Errorf("booking database host and dbname are required")
	}

	if c.App.Environment == "production" && c.JWT.Secret == "change-me-in-production" {
		return fmt.Errorf("JWT secret must be changed in production")
	}

	if c.Outbox.MaxRetries < 0 {
		return fmt.Errorf("outbox max retries must be >= 0")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
