package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"serenity-catalog/internal/config"
	"serenity-catalog/internal/database"
	"serenity-catalog/internal/domain"
	"serenity-catalog/internal/messaging"
	"serenity-catalog/internal/metrics"
	custommiddleware "serenity-catalog/internal/middleware"
	"serenity-catalog/internal/repository"
	"serenity-catalog/internal/service"
	"serenity-catalog/internal/storage"
	"serenity-catalog/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deps are the external resources the API runs on
type Deps struct {
	Database  *database.Service
	Redis     *redis.Client
	Disk      storage.Disk
	Publisher messaging.EventPublisher
	Metrics   *metrics.Metrics
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	deps   Deps
}

func NewServer(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      NewRouter(cfg, logger, deps),
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
		deps:   deps,
	}
}

// NewRouter builds the HTTP routes and wires repositories, services and handlers
func NewRouter(cfg *config.Config, logger *zap.Logger, deps Deps) http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultMiddlewareStack(logger) {
		router.Use(mw)
	}
	router.Use(deps.Metrics.Middleware())
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, !cfg.IsProduction()))

	router.MethodNotAllowed(custommiddleware.MethodNotAllowed)
	router.NotFound(custommiddleware.NotFound)

	// Initialize repositories
	db := deps.Database.DB()
	productRepo := repository.NewProductRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Health check endpoint
	router.Get("/health", healthHandler(deps.Database, productRepo, logger))
	router.Handle("/metrics", deps.Metrics.Handler())

	// Serve stored images when they live on the local disk
	if local, ok := deps.Disk.(*storage.LocalDisk); ok {
		prefix := "/" + strings.Trim(cfg.Storage.URLPrefix, "/")
		fileServer := http.StripPrefix(prefix, http.FileServer(http.Dir(local.Root())))
		router.Get(prefix+"/*", fileServer.ServeHTTP)
	}

	// Initialize services
	catalogService := service.NewCatalogService(
		productRepo,
		storage.NewAssetStore(deps.Disk, logger),
		deps.Publisher,
		service.CatalogCounters{
			Created:      deps.Metrics.ProductsCreated,
			Updated:      deps.Metrics.ProductsUpdated,
			Deleted:      deps.Metrics.ProductsDeleted,
			AssetsStored: deps.Metrics.AssetsStored,
		},
		logger,
	)
	sessionService := service.NewSessionService(
		userRepo,
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessExpiry)*time.Minute,
		logger,
	)

	// Create auth, role and rate limit middleware
	authMiddleware := custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger)
	writeMiddleware := []func(http.Handler) http.Handler{
		custommiddleware.RequireRole([]string{domain.RoleAdmin, domain.RoleStaff}, logger),
		custommiddleware.RateLimitMiddleware(deps.Redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "catalog_rate_limit",
		}, logger),
	}

	// Register routes
	transport.NewSessionHandler(sessionService, logger).RegisterRoutes(router)
	transport.NewProductHandler(catalogService, cfg.Storage.MaxBytes, logger).
		RegisterRoutes(router, authMiddleware, writeMiddleware...)
	transport.NewUploadHandler(catalogService, cfg.Storage.MaxBytes, logger).
		RegisterRoutes(router, append([]func(http.Handler) http.Handler{authMiddleware}, writeMiddleware...)...)

	return router
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if closer, ok := s.deps.Publisher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}

	if s.deps.Redis != nil {
		if err := s.deps.Redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.deps.Database != nil {
		if err := s.deps.Database.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
