package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/cenkalti/backoff/v4"
	"github.com/pubcrawl-badges/internal/badge"
	"github.com/pubcrawl-badges/internal/config"
	"github.com/pubcrawl-badges/internal/handler"
	"github.com/pubcrawl-badges/internal/kafka"
	"github.com/pubcrawl-badges/internal/postgres"
	"github.com/pubcrawl-badges/internal/redis"
	"github.com/pubcrawl-badges/internal/service"
	"github.com/pubcrawl-badges/internal/websocket"
	"github.com/pubcrawl-badges/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	loc, err := cfg.Badges.Location()
	if err != nil {
		logger.Error("invalid badge timezone", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL
	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	var postgresRepo *postgres.Repository
	err = connect(ctx, logger, "postgres", cfg.Startup, func(ctx context.Context) error {
		repo, err := postgres.NewRepository(ctx, &cfg.Postgres, logger)
		if err != nil {
			return err
		}
		postgresRepo = repo
		return nil
	})
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer postgresRepo.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := postgresRepo.RunMigrations(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize Redis
	logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
	var badgeCache *redis.BadgeCache
	err = connect(ctx, logger, "redis", cfg.Startup, func(ctx context.Context) error {
		cache, err := redis.NewBadgeCache(ctx, &cfg.Redis, logger)
		if err != nil {
			return err
		}
		badgeCache = cache
		return nil
	})
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer badgeCache.Close()
	logger.Info("connected to Redis")

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(&cfg.WebSocket, logger)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	// Initialize badge engine and services
	rules := badge.DefaultRules(badge.RuleOptions{
		Location:        loc,
		EarlyBirdHour:   cfg.Badges.EarlyBird(),
		NightOwlHour:    cfg.Badges.NightOwl(),
		HatTrickEnabled: cfg.Badges.HatTrick(),
	})
	earnedStore := service.NewEarnedBadgeStore(postgresRepo, badgeCache, logger)
	engine := badge.NewEngine(earnedStore, badge.DefaultCatalog(), rules, logger)
	badgeService := service.NewBadgeService(postgresRepo, postgresRepo, earnedStore, engine, loc, logger)

	// Set the WebSocket hub on the service for badge notifications
	badgeService.SetNotifier(wsHub)

	if err := badgeService.LoadCatalog(ctx); err != nil {
		logger.Error("failed to load badge catalog", "error", err)
		os.Exit(1)
	}

	// Initialize catch-up worker
	catchUpWorker := worker.NewCatchUpWorker(postgresRepo, badgeService, &cfg.CatchUp, logger)

	// Warm the badge cache on startup
	if err := catchUpWorker.WarmCache(ctx); err != nil {
		logger.Warn("failed to warm badge cache on startup", "error", err)
	}

	if cfg.CatchUp.Enabled {
		if err := catchUpWorker.Start(ctx); err != nil {
			logger.Error("failed to start catch-up worker", "error", err)
			os.Exit(1)
		}
	}

	// Initialize Kafka consumer for check-in ingestion
	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		var err error
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, badgeService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			if err := kafkaConsumer.Start(); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				kafkaConsumer = nil
			} else {
				logger.Info("Kafka consumer started successfully")
			}
		}
	}

	// Initialize HTTP handler with WebSocket hub
	httpHandler := handler.NewHandler(badgeService, wsHub, map[string]handler.Pinger{
		"postgres": postgresRepo,
		"redis":    badgeCache,
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop ingress before the stores close
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := catchUpWorker.Stop(); err != nil {
		logger.Error("failed to stop catch-up worker", "error", err)
	}

	wsHub.Stop()

	logger.Info("server stopped")
}

// connect dials a dependency with exponential backoff
func connect(ctx context.Context, logger *slog.Logger, name string, cfg config.StartupConfig, dial func(context.Context) error) error {
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return dial(attemptCtx)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.ConnectRetries)),
		ctx,
	)

	return backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logger.Warn("dependency not ready, retrying",
			"dependency", name,
			"error", err,
			"retry_in", wait,
		)
	})
}
