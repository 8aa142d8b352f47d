package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pulsefeed/pulse/internal/cache"
	"github.com/pulsefeed/pulse/internal/config"
	"github.com/pulsefeed/pulse/internal/domain"
	"github.com/pulsefeed/pulse/internal/handler"
	"github.com/pulsefeed/pulse/internal/middleware"
	"github.com/pulsefeed/pulse/internal/repository"
	"github.com/pulsefeed/pulse/internal/service"
	"github.com/pulsefeed/pulse/pkg/database"
	"github.com/pulsefeed/pulse/pkg/jwt"
	pkglog "github.com/pulsefeed/pulse/pkg/log"
	"github.com/pulsefeed/pulse/pkg/pubsub"
	"github.com/pulsefeed/pulse/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "pulse",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := database.AutoMigrate(db,
		&domain.UserModel{},
		&domain.GroupModel{},
		&domain.PostModel{},
		&domain.CommentModel{},
		&domain.FollowModel{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}

	// Listing cache
	listingCache, err := cache.NewRedisListingCache(cfg.Redis, cfg.Cache.Prefix)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create listing cache")
	}
	defer listingCache.Close()

	// Image storage backend
	assets, err := newStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create storage")
	}

	// Event bus
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create pubsub")
	}
	defer bus.Close()

	// JWT manager
	jwtManager, err := jwt.NewManager(cfg.JWT.AccessDuration, cfg.JWT.RefreshDuration, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create JWT manager")
	}

	// Repositories
	userRepo := repository.NewGormUserRepository(db)
	groupRepo := repository.NewGormGroupRepository(db)
	postRepo := repository.NewGormPostRepository(db)
	commentRepo := repository.NewGormCommentRepository(db)
	followRepo := repository.NewGormFollowRepository(db)

	// Services
	userService := service.NewUserService(userRepo, postRepo, followRepo, jwtManager, assets, cfg.Admin.Usernames)
	postService := service.NewPostService(postRepo, commentRepo, groupRepo, listingCache, cfg.Cache.TTL, assets, bus)
	followService := service.NewFollowService(userRepo, followRepo)
	groupService := service.NewGroupService(groupRepo)

	// Middleware and handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtManager)
	httpHandler := handler.NewHandler(postService, userService, followService, groupService, authMiddleware)
	authHandler := handler.NewAuthHandler(userService)

	// Setup Gin router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(pkglog.GinMiddleware(logger))

	httpHandler.RegisterRoutes(router)
	authHandler.RegisterRoutes(router)

	// Invalidate cached listings whenever any post changes.
	invalidateCtx, stopInvalidate := context.WithCancel(context.Background())
	defer stopInvalidate()
	go invalidateOnPostEvents(invalidateCtx, bus, listingCache, logger)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info().Str("addr", addr).Str("driver", cfg.Database.Driver).Msg("pulse starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server exited")
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			Bucket:          cfg.Storage.S3.Bucket,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
			PublicURL:       cfg.Storage.S3.PublicURL,
		})
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.Storage.Local.BasePath,
		})
	}
}

// invalidateOnPostEvents drops every cached listing page when a post is
// created, updated or deleted anywhere in the system.
func invalidateOnPostEvents(ctx context.Context, bus pubsub.Subscriber, listingCache cache.ListingCache, logger zerolog.Logger) {
	events, err := bus.SubscribePattern(ctx, pubsub.PostPattern())
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to post events")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := listingCache.Invalidate(ctx); err != nil {
				logger.Warn().Err(err).Str("event_type", event.Type).Msg("listing cache invalidation failed")
			}
		}
	}
}
