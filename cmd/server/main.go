package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	config "github.com/codeweberdotcom/limitguard/configs"
	"github.com/codeweberdotcom/limitguard/internal/application/services"
	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
	"github.com/codeweberdotcom/limitguard/internal/core/ports"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/db"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/health"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/httpserver"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/redis"
	"github.com/codeweberdotcom/limitguard/internal/infrastructure/repositories"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Setup logger
	logger := logrus.New()
	if cfg.Log.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}

	logger.Info("Starting limitguard...")

	// Initialize database (apply pool settings from config)
	database, err := db.NewDatabaseWithConfig(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database:", err)
	}
	defer database.Close()

	logger.Info("Connected to database successfully")

	// Initialize Redis client
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis:", err)
	}
	defer redisClient.Close()

	logger.Info("Connected to Redis successfully")

	// Run migrations
	if err := database.Migrate("./migrations"); err != nil {
		logger.Warn("Failed to run migrations:", err)
	}

	// Stores: Redis is the hot path, Postgres the durable system of record.
	redisStore := repositories.NewRedisLimitStore(redisClient, logger)
	pgStore := repositories.NewPostgresLimitStore(database, logger)
	redisCache := redis.NewRedisCache(redisClient, "rl")

	manager := repositories.NewStoreManager(redisStore, pgStore, redisCache, repositories.StoreManagerConfig{
		HealthInterval: cfg.Limiter.HealthInterval,
		CallTimeout:    cfg.Limiter.StoreCallTimeout,
	}, logger)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(rootCtx)

	// Repositories and services
	configRepo := repositories.NewConfigRepository(database, logger)
	eventRepo := repositories.NewEventRepository(database, logger)

	defaultConfig := ratelimit.Config{
		MaxRequests:   cfg.Limiter.DefaultMaxRequests,
		Window:        cfg.Limiter.DefaultWindow,
		BlockDuration: cfg.Limiter.DefaultBlockDuration,
		Mode:          ratelimit.Mode(cfg.Limiter.DefaultMode),
	}

	configService := services.NewConfigService(configRepo, defaultConfig, cfg.Limiter.ConfigCacheTTL, logger)
	eventService := services.NewEventService(eventRepo, logger)
	limiterService := services.NewLimiterService(manager, configService, eventService, services.LimiterServiceConfig{
		FailOpen:    cfg.Limiter.FailOpen,
		Environment: ratelimit.Environment(cfg.Limiter.Environment),
	}, logger)
	blockService := services.NewBlockService(manager, pgStore, logger)

	// Background sweep of expired counters, block reports and dead blocks.
	go func() {
		ticker := time.NewTicker(cfg.Limiter.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				if err := pgStore.CleanupExpired(rootCtx, cfg.Limiter.CleanupRetention); err != nil {
					logger.WithError(err).Warn("cleanup sweep failed")
				}
			}
		}
	}()

	hcSlice := []ports.HealthChecker{health.NewDBHealthChecker(database), health.NewRedisHealthChecker(redisClient)}

	// Create server configuration
	serverConfig := &httpserver.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		TLSCertFile:       cfg.Server.TLSCertFile,
		TLSKeyFile:        cfg.Server.TLSKeyFile,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		AdminToken:        cfg.Server.AdminToken,
		SelfProtectModule: cfg.Limiter.SelfProtectModule,
	}

	// Initialize HTTP server using ServerDeps for clearer wiring
	deps := httpserver.ServerDeps{
		LimiterService: limiterService,
		BlockService:   blockService,
		EventService:   eventService,
		ConfigService:  configService,
		Store:          manager,
		HealthCheckers: hcSlice,
	}

	server := httpserver.NewServer(serverConfig, logger, deps)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start server:", err)
		}
	}()

	logger.Infof("Server started on %s:%s", cfg.Server.Host, cfg.Server.Port)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
