// Package main runs the clan portal HTTP server with the live event feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/blok13/clanportal/config"
	"github.com/blok13/clanportal/internal/admin"
	"github.com/blok13/clanportal/internal/applications"
	"github.com/blok13/clanportal/internal/auth"
	"github.com/blok13/clanportal/internal/events"
	"github.com/blok13/clanportal/internal/exports"
	"github.com/blok13/clanportal/internal/feed"
	"github.com/blok13/clanportal/internal/metrics"
	"github.com/blok13/clanportal/internal/middleware"
	"github.com/blok13/clanportal/internal/models"
	"github.com/blok13/clanportal/internal/profiles"
	"github.com/blok13/clanportal/internal/realtime"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/internal/waitlist"
	"github.com/blok13/clanportal/pkg/database"
	"github.com/blok13/clanportal/pkg/queue"
	"github.com/blok13/clanportal/pkg/redis"
	"github.com/blok13/clanportal/pkg/response"
	"github.com/blok13/clanportal/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var objects exports.ObjectStore
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}

	m := metrics.New()
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub, m)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Stores
	eventRepo := events.NewRepository(pool)
	profileRepo := profiles.NewRepository(pool)
	applicationRepo := applications.NewRepository(pool)
	rosterStore := roster.NewPostgresStore(pool)

	// Live feed
	feedLoader := feed.NewLoader(eventRepo, rosterStore, applicationRepo, feed.Limits{
		Participants: cfg.Events.ParticipantsLimit,
		Applications: cfg.Events.ApplicationsLimit,
	})
	publisher := feed.NewPublisher(feedLoader, hub, logger)

	// Participation workflow
	coordinator := roster.NewCoordinator(rosterStore, profileRepo, publisher, m, logger)
	ledger := applications.NewLedger(applicationRepo, cfg.Events.StrictTransitions, cfg.Events.ApplicationsLimit, logger)
	waitQueue := waitlist.NewQueue(rosterStore, profileRepo, publisher, logger)
	exportsAPI := adminExports(objects, func() admin.Exports {
		return exports.NewService(exports.NewRepository(pool), feedLoader, objects, jobQueue, logger)
	})

	// Handlers
	eventHandler := events.NewHandler(eventRepo, publisher, events.Options{
		RunningGrace: cfg.Events.RunningGrace,
		ListLimit:    cfg.Events.ListLimit,
	}, logger)
	profileHandler := profiles.NewHandler(profileRepo, logger)
	applicationHandler := applications.NewHandler(ledger, eventRepo, profileRepo, coordinator, publisher, logger)
	rosterHandler := roster.NewHandler(coordinator, rosterStore, cfg.Events.ParticipantsLimit, logger)
	waitlistHandler := waitlist.NewHandler(waitQueue, logger)
	adminHandler := admin.NewHandler(admin.Deps{
		Coordinator:       coordinator,
		Reader:            rosterStore,
		Ledger:            ledger,
		Waitlist:          waitQueue,
		Jobs:              jobQueue,
		Exports:           exportsAPI,
		Notifier:          publisher,
		ParticipantsLimit: cfg.Events.ParticipantsLimit,
	}, logger)

	signupLimit := middleware.RateLimit(middleware.NewKeyedRateLimiter(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(m.Middleware())

	// Health
	router.GET("/health", func(c *gin.Context) {
		if !rdb.Healthy(c.Request.Context()) || pool.Ping(c.Request.Context()) != nil {
			response.ServiceUnavailable(c, "dependencies unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.StoredRole(profileRepo, logger))
	{
		// Profiles
		api.GET("/me", profileHandler.Me)
		api.PATCH("/me", profileHandler.UpdateMe)
		api.PUT("/me/stats", profileHandler.UpdateMyStats)
		api.GET("/me/events", profileHandler.MyEvents)
		api.GET("/me/applications", applicationHandler.ListMine)
		api.GET("/profiles/:uid", profileHandler.Get)

		clan := api.Group("")
		clan.Use(middleware.RequireClanMember())
		{
			clan.GET("/members", profileHandler.ListMembers)

			// Events
			clan.GET("/events", eventHandler.List)
			clan.GET("/events/:id", eventHandler.GetByID)
			clan.GET("/events/:id/participants", rosterHandler.Participants)

			// Signups
			clan.POST("/events/:id/join", signupLimit, rosterHandler.Join)
			clan.POST("/events/:id/leave", rosterHandler.Leave)
			clan.POST("/events/:id/applications", signupLimit, applicationHandler.Submit)
			clan.GET("/events/:id/applications/me", applicationHandler.Mine)
			clan.DELETE("/events/:id/applications/me", applicationHandler.Withdraw)
			clan.POST("/events/:id/waitlist", signupLimit, waitlistHandler.Join)
			clan.GET("/events/:id/waitlist/me", waitlistHandler.Mine)
			clan.DELETE("/events/:id/waitlist/me", waitlistHandler.Leave)
		}

		adminOnly := middleware.RequireRole(models.RoleAdmin)
		api.POST("/events", adminOnly, eventHandler.Create)
		api.PATCH("/events/:id", adminOnly, eventHandler.Update)
		api.POST("/events/:id/archive", adminOnly, eventHandler.Archive)
		api.POST("/events/:id/close", adminOnly, eventHandler.Close)
		api.DELETE("/events/:id", adminOnly, eventHandler.Delete)
		api.PUT("/profiles/:uid/role", adminOnly, profileHandler.SetRole)

		adminHandler.Register(api.Group("/admin", adminOnly))
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, feedLoader, jwtService, profileRepo, middleware.OriginAllowed(cfg.Server.CORSAllowedOrigins), logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// adminExports returns the export backend for the admin console, or a nil interface when object
// storage is not configured so export routes answer 503 instead of queueing work that cannot finish.
func adminExports(objects exports.ObjectStore, build func() admin.Exports) admin.Exports {
	if objects == nil {
		return nil
	}
	return build()
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
