// Package main runs the background job worker (recount sweeps, roster exports to S3).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blok13/clanportal/config"
	"github.com/blok13/clanportal/internal/applications"
	"github.com/blok13/clanportal/internal/events"
	"github.com/blok13/clanportal/internal/exports"
	"github.com/blok13/clanportal/internal/feed"
	"github.com/blok13/clanportal/internal/metrics"
	"github.com/blok13/clanportal/internal/profiles"
	"github.com/blok13/clanportal/internal/realtime"
	"github.com/blok13/clanportal/internal/roster"
	"github.com/blok13/clanportal/internal/worker"
	"github.com/blok13/clanportal/pkg/database"
	"github.com/blok13/clanportal/pkg/queue"
	"github.com/blok13/clanportal/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Without S3 the worker still runs recounts; export jobs are marked failed.
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
			logger.Warn("s3 disabled, roster exports will fail", zap.Error(err))
		} else {
			objects = s3Client
		}
	} else {
		logger.Warn("AWS_REGION not set, roster exports will fail")
	}

	m := metrics.New()
	eventRepo := events.NewRepository(pool)
	rosterStore := roster.NewPostgresStore(pool)
	feedLoader := feed.NewLoader(eventRepo, rosterStore, applications.NewRepository(pool), feed.Limits{
		Participants: cfg.Events.ParticipantsLimit,
		Applications: cfg.Events.ApplicationsLimit,
	})

	// Recount repairs are pushed to live viewers through Redis like any server-side change.
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	publisher := feed.NewPublisher(feedLoader, realtime.NewHub(logger, redisPubSub, redisPubSub, m), logger)
	coordinator := roster.NewCoordinator(rosterStore, profiles.NewRepository(pool), publisher, m, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	exportService := exports.NewService(exports.NewRepository(pool), feedLoader, objects, nil, logger)
	processor := worker.NewProcessor(jobQueue, coordinator, eventRepo, exportService, m, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	go worker.Schedule(workerCtx, cfg.Events.RecountInterval, logger, func(ctx context.Context) error {
		_, err := jobQueue.EnqueueRecountAll(ctx)
		return err
	})
	logger.Info("worker started", zap.Duration("recount_interval", cfg.Events.RecountInterval))

	metricsSrv := &http.Server{Addr: ":" + cfg.Server.WorkerMetricsPort, Handler: m.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
