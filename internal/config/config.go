package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type (
	// Config holds all settings of the checkout orchestrator
	Config struct {
		// HTTP API
		HTTPPort           string
		RequestTimeout     time.Duration
		ShutdownTimeout    time.Duration
		MaxRequestBodySize int64
		LogLevel           string
		Environment        string
		Version            string

		// Remote commerce backend
		Backend BackendConfig

		// Session store
		SessionBackend string
		SessionTTL     time.Duration
		Redis          RedisConfig
		Mongo          MongoConfig

		// Checkout journal
		DB DBConfig

		// Messaging
		KafkaBrokers        []string
		EventsTopic         string
		PaymentOutcomeTopic string
		ConsumerGroup       string
		PaymentTimeout      time.Duration

		DefaultLanguage string
		Currency        string
	}

	BackendConfig struct {
		BaseURL          string
		ClientID         string
		ClientSecret     string
		CallTimeout      time.Duration
		TokenSkew        time.Duration
		BreakerTimeout   time.Duration
		BreakerThreshold uint32
		PaymentReturnURL string
		// CallbackSecret signs payment provider callbacks
		CallbackSecret string
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	MongoConfig struct {
		URI        string
		Database   string
		Collection string
	}

	DBConfig struct {
		Host           string
		Port           int
		User           string
		Password       string
		Name           string
		MigrationsPath string
	}
)

const (
	SessionBackendRedis = "redis"
	SessionBackendMongo = "mongo"

	DefaultHTTPPort        = "8080"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCallTimeout     = 5 * time.Second
	DefaultTokenSkew       = 30 * time.Second
	DefaultSessionTTL      = 30 * time.Minute
	DefaultPaymentTimeout  = 20 * time.Minute
	DefaultLanguage        = "es"
	DefaultCurrency        = "CLP"

	EnvironmentLocal = "local"
)

var (
	ErrMissingBackendURL     = errors.New("backend base url is required")
	ErrInvalidSessionBackend = errors.New("session backend must be redis or mongo")
	ErrInvalidTimeout        = errors.New("timeouts must be positive")
	ErrInvalidDBPort         = errors.New("invalid DB port")
	ErrMissingKafkaBrokers   = errors.New("at least one kafka broker is required")
	ErrMissingCurrency       = errors.New("currency is required")
	ErrMissingCallbackSecret = errors.New("payment callback secret is required outside local runs")
)

// NewDefaultConfig returns settings suitable for a local run against
// docker-compose dependencies
func NewDefaultConfig() *Config {
	return &Config{
		HTTPPort:           DefaultHTTPPort,
		RequestTimeout:     DefaultRequestTimeout,
		ShutdownTimeout:    DefaultShutdownTimeout,
		MaxRequestBodySize: 1 << 20, // 1MB
		LogLevel:           "info",
		Environment:        EnvironmentLocal,
		Version:            "dev",
		Backend: BackendConfig{
			BaseURL:          "http://localhost:9000",
			CallTimeout:      DefaultCallTimeout,
			TokenSkew:        DefaultTokenSkew,
			BreakerTimeout:   30 * time.Second,
			BreakerThreshold: 5,
			PaymentReturnURL: "http://localhost:3000/checkout/payment-return",
		},
		SessionBackend: SessionBackendRedis,
		SessionTTL:     DefaultSessionTTL,
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "checkout",
			Collection: "sessions",
		},
		DB: DBConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Password:       "postgres",
			Name:           "checkout",
			MigrationsPath: "./internal/repository/migrations",
		},
		KafkaBrokers:        []string{"localhost:9092"},
		EventsTopic:         "fixed-checkout-events",
		PaymentOutcomeTopic: "payment-outcomes",
		ConsumerGroup:       "fixed-checkout",
		PaymentTimeout:      DefaultPaymentTimeout,
		DefaultLanguage:     DefaultLanguage,
		Currency:            DefaultCurrency,
	}
}

// LoadFromEnv overrides defaults with environment variables. Returns an error
// if a numeric or duration variable cannot be parsed.
func (c *Config) LoadFromEnv() error {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.Version = getEnv("SERVICE_VERSION", c.Version)
	c.DefaultLanguage = getEnv("DEFAULT_LANGUAGE", c.DefaultLanguage)
	c.Currency = strings.ToUpper(getEnv("CURRENCY", c.Currency))

	c.Backend.BaseURL = getEnv("BACKEND_BASE_URL", c.Backend.BaseURL)
	c.Backend.ClientID = getEnv("BACKEND_CLIENT_ID", c.Backend.ClientID)
	c.Backend.ClientSecret = getEnv("BACKEND_CLIENT_SECRET", c.Backend.ClientSecret)
	c.Backend.PaymentReturnURL = getEnv("PAYMENT_RETURN_URL", c.Backend.PaymentReturnURL)
	c.Backend.CallbackSecret = getEnv("PAYMENT_CALLBACK_SECRET", c.Backend.CallbackSecret)

	c.SessionBackend = getEnv("SESSION_BACKEND", c.SessionBackend)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB_NAME", c.Mongo.Database)

	c.DB.Host = getEnv("DB_HOST", c.DB.Host)
	c.DB.User = getEnv("DB_USER", c.DB.User)
	c.DB.Password = getEnv("DB_PASSWORD", c.DB.Password)
	c.DB.Name = getEnv("DB_NAME", c.DB.Name)
	c.DB.MigrationsPath = getEnv("MIGRATIONS_PATH", c.DB.MigrationsPath)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.KafkaBrokers = splitList(brokers)
	}
	c.EventsTopic = getEnv("EVENTS_TOPIC", c.EventsTopic)
	c.PaymentOutcomeTopic = getEnv("PAYMENT_OUTCOME_TOPIC", c.PaymentOutcomeTopic)
	c.ConsumerGroup = getEnv("CONSUMER_GROUP", c.ConsumerGroup)

	var err error
	if c.DB.Port, err = getEnvAsInt("DB_PORT", c.DB.Port); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvAsInt("REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	threshold, err := getEnvAsInt("BACKEND_BREAKER_THRESHOLD", int(c.Backend.BreakerThreshold))
	if err != nil {
		return err
	}
	c.Backend.BreakerThreshold = uint32(threshold)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", &c.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", &c.ShutdownTimeout},
		{"BACKEND_CALL_TIMEOUT", &c.Backend.CallTimeout},
		{"BACKEND_TOKEN_SKEW", &c.Backend.TokenSkew},
		{"BACKEND_BREAKER_TIMEOUT", &c.Backend.BreakerTimeout},
		{"SESSION_TTL", &c.SessionTTL},
		{"PAYMENT_TIMEOUT", &c.PaymentTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getEnvAsDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return ErrMissingBackendURL
	}
	if c.SessionBackend != SessionBackendRedis && c.SessionBackend != SessionBackendMongo {
		return fmt.Errorf("%w: %q", ErrInvalidSessionBackend, c.SessionBackend)
	}
	if c.RequestTimeout <= 0 || c.Backend.CallTimeout <= 0 || c.SessionTTL <= 0 || c.PaymentTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidDBPort, c.DB.Port)
	}
	if len(c.KafkaBrokers) == 0 {
		return ErrMissingKafkaBrokers
	}
	if c.Currency == "" {
		return ErrMissingCurrency
	}
	if c.Backend.CallbackSecret == "" && c.Environment != EnvironmentLocal {
		return ErrMissingCallbackSecret
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var res []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
