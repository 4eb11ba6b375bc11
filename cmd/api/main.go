package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"serenity-catalog/internal/config"
	"serenity-catalog/internal/database"
	"serenity-catalog/internal/logger"
	"serenity-catalog/internal/messaging"
	"serenity-catalog/internal/metrics"
	"serenity-catalog/internal/repository"
	"serenity-catalog/internal/server"
	"serenity-catalog/internal/service"
	"serenity-catalog/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *server.Server, logger *zap.Logger, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// The context is used to inform the server it has 30 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Close server resources
	if err := apiServer.Close(); err != nil {
		logger.Error("Error closing server resources", zap.Error(err))
	}

	logger.Info("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func newPublisher(cfg config.RabbitMQConfig, log *zap.Logger) messaging.EventPublisher {
	if cfg.URL == "" {
		log.Info("RABBITMQ_URL not set, product events are discarded")
		return messaging.NopPublisher{}
	}

	publisher, err := messaging.DialRabbitPublisher(cfg.URL, cfg.Queue)
	if err != nil {
		log.Warn("RabbitMQ unavailable, product events are discarded", zap.Error(err))
		return messaging.NopPublisher{}
	}

	log.Info("Publishing product events", zap.String("queue", cfg.Queue))
	return publisher
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting catalog API",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
	)

	ctx := context.Background()

	// Initialize database
	dbService, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	db := dbService.DB()

	// Check database health
	health := dbService.Health()
	log.Info("Database health check", zap.Any("health", health))

	if len(os.Args) > 1 && os.Args[1] == "migrate-status" {
		if err := database.GetMigrationStatus(ctx, db); err != nil {
			log.Fatal("Failed to read migration status", zap.Error(err))
		}
		return
	}

	// Run migrations
	if err := database.RunMigrations(ctx, db, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Seed the admin account
	if cfg.JWT.Secret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	sessions := service.NewSessionService(
		repository.NewUserRepository(db),
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiry)*time.Minute,
		log,
	)
	if _, err := sessions.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		log.Fatal("Failed to ensure admin account", zap.Error(err))
	}

	// Initialize storage
	disk, err := storage.NewDisk(ctx, cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	log.Info("Storage ready", zap.String("disk", cfg.Storage.Disk))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Create server
	srv := server.NewServer(cfg, log, server.Deps{
		Database:  dbService,
		Redis:     redisClient,
		Disk:      disk,
		Publisher: newPublisher(cfg.RabbitMQ, log),
		Metrics:   metrics.New(),
	})

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(srv, log, done)

	log.Info("Server listening", zap.String("addr", srv.Addr))

	err = srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal("HTTP server error", zap.Error(err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info("Graceful shutdown complete")
}
