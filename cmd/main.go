package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/config"
	"github.com/fjod/go_cart/fixed-checkout/internal/consumer"
	h "github.com/fjod/go_cart/fixed-checkout/internal/http"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/internal/publisher"
	"github.com/fjod/go_cart/fixed-checkout/internal/repository"
	"github.com/fjod/go_cart/fixed-checkout/internal/service"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
	"github.com/fjod/go_cart/fixed-checkout/internal/token"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

func fatal(msg string, err error) {
	slog.Error(msg, logger.Error(err))
	os.Exit(1)
}

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		fatal("invalid configuration", err)
	}
	slog.SetDefault(logger.NewWithLevel("fixed-checkout", cfg.Environment, cfg.Version, logger.ParseLevel(cfg.LogLevel)))
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}
	// trace context flows from inbound requests to backend calls
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	slog.Info("fixed-checkout starting...", slog.String("session_backend", cfg.SessionBackend))

	ctx := context.Background()
	var wg sync.WaitGroup

	// Session store
	var store session.Store
	switch cfg.SessionBackend {
	case config.SessionBackendMongo:
		db, err := session.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			fatal("failed to connect to MongoDB", err)
		}
		defer func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				slog.Error("failed to disconnect from MongoDB", logger.Error(err))
			}
		}()
		mongoStore := session.NewMongoStore(db, cfg.Mongo.Collection, cfg.SessionTTL)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			fatal("failed to create session indexes", err)
		}
		store = mongoStore
		slog.Info("connected to MongoDB", slog.String("database", cfg.Mongo.Database))
	default:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			fatal("redis connection failed", err)
		}
		store = session.NewRedisStore(redisClient, cfg.SessionTTL)
		slog.Info("redis ping succeeded", slog.String("addr", cfg.Redis.Addr))
	}
	locker := session.NewLocker()

	// Checkout journal
	creds := &repository.Credentials{
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.Name,
		MigrationsDirPath: cfg.DB.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		fatal("failed to run migrations", err)
	}
	slog.Info("database migrations completed")

	// Remote backend and the flow
	client := backend.NewClient(backend.Config{
		BaseURL:          cfg.Backend.BaseURL,
		ClientID:         cfg.Backend.ClientID,
		ClientSecret:     cfg.Backend.ClientSecret,
		Timeout:          cfg.Backend.CallTimeout,
		BreakerTimeout:   cfg.Backend.BreakerTimeout,
		BreakerThreshold: cfg.Backend.BreakerThreshold,
	})
	tokens := token.NewProvider(client, store, locker, cfg.Backend.TokenSkew)
	translator := i18n.New(cfg.DefaultLanguage)

	checkoutService := service.NewCheckoutService(client, tokens, store, locker, repo, translator, service.Config{
		PaymentReturnURL: cfg.Backend.PaymentReturnURL,
		Currency:         cfg.Currency,
	})

	// Background workers
	workersCtx, workersCancel := context.WithCancel(context.Background())

	poller := publisher.NewOutboxPoller(repo, cfg.PaymentTimeout, cfg.EventsTopic, cfg.KafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(workersCtx)
	}()

	outcomes := consumer.NewConsumer(checkoutService, cfg.PaymentOutcomeTopic, cfg.ConsumerGroup, cfg.KafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcomes.Run(workersCtx)
	}()

	// HTTP API
	checkoutHandler := h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout)
	router := h.NewRouter(checkoutHandler, translator, h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		CallbackSecret:     cfg.Backend.CallbackSecret,
	})
	if cfg.Backend.CallbackSecret == "" {
		slog.Warn("PAYMENT_CALLBACK_SECRET is not set, payment callbacks will be refused")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("fixed-checkout listening", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down fixed-checkout...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", logger.Error(err))
	}
	workersCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		slog.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		slog.Warn("workers didn't stop in time")
	}

	outcomes.Close()
	if err := poller.Close(); err != nil {
		slog.Error("failed to close outbox writer", logger.Error(err))
	}
	slog.Info("fixed-checkout stopped")
}
