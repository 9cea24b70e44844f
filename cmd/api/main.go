package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	_ "github.com/tashrique/BrokeNoMore-Backend-Server/docs" // Swagger docs (generated)
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/auth"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/config"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/database"
	httpServer "github.com/tashrique/BrokeNoMore-Backend-Server/internal/http"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/logging"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/metrics"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/ratelimit"
	"github.com/tashrique/BrokeNoMore-Backend-Server/internal/user"
)

// @title           BrokeNoMore API
// @version         1.0
// @description     Authentication backend for the BrokeNoMore personal-finance app.

// @host      localhost:8000
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
		"token_algorithm", cfg.Auth.TokenAlgorithm,
	)

	ctx := context.Background()

	db, err := initDB(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Redis is optional: without it the discovery cache stays in process
	// and auth endpoints are not rate limited.
	var (
		discoveryCache auth.DiscoveryCache = auth.NewMemoryDiscoveryCache()
		rateLimiter    auth.RateLimiter
	)
	if cfg.Redis.Enabled() {
		redisClient, err := initRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		defer redisClient.Close()

		discoveryCache = auth.NewRedisDiscoveryCache(redisClient)
		rateLimiter = ratelimit.NewLimiter(redisClient, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	} else {
		logger.Warn("redis not configured, rate limiting disabled")
	}

	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(registry)

	tokenService, err := auth.NewTokenService(cfg.Auth.TokenAlgorithm, cfg.Auth.SecretKey, cfg.Auth.AccessTokenDuration)
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}

	provider, err := auth.NewProvider(auth.ProviderConfig{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		RedirectURI:  cfg.OAuth.RedirectURI,
		DiscoveryURL: cfg.OAuth.DiscoveryURL,
		HTTPTimeout:  cfg.OAuth.HTTPTimeout,
		DiscoveryTTL: cfg.OAuth.DiscoveryTTL,
	},
		auth.WithDiscoveryCache(discoveryCache),
		auth.WithProviderMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	directory := user.NewDirectory(user.NewRepository(db))
	authService := auth.NewService(provider, directory, tokenService, collector)

	authHandler := auth.NewHandler(authService, rateLimiter, collector, auth.HandlerConfig{
		PostLoginURL:  cfg.Auth.PostLoginURL(),
		TokenLifetime: cfg.Auth.AccessTokenDuration,
		SecureCookies: !cfg.Server.IsDevelopment(),
	})
	authMiddleware := auth.NewMiddleware(authService)

	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, logger, metrics.Handler(registry))

	server := httpServer.NewServer(
		":"+cfg.Server.Port,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initDB opens the configured database and creates missing tables when
// auto-migration is enabled.
func initDB(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger) (*bun.DB, error) {
	db, err := database.Open(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.CreateSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("database schema ready")
	}

	return db, nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
