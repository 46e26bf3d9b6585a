package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TrainAI/config"
	"TrainAI/internal/handler"
	"TrainAI/internal/mq"
	"TrainAI/internal/repo"
	"TrainAI/internal/service"
	"TrainAI/internal/storage"
	"TrainAI/internal/task"
	"TrainAI/router"
	"TrainAI/utils"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// main initializes services and starts the HTTP server.
func main() {
	cfg := config.InitConfig()
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}
	db, err := repo.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	var (
		sessions repo.SessionStore
		locker   repo.Locker
		rdb      *redis.Client
	)
	switch cfg.SessionBackend {
	case "memory":
		logger.Warn("using in-memory sessions; run a single API instance")
		sessions = repo.NewMemorySessionStore()
		locker = repo.NewMemoryLocker()
	default:
		rdb, err = repo.InitRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessions = repo.NewRedisSessionStore(rdb)
		locker = repo.NewRedisLocker(rdb)
	}

	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	defer publisher.Close()

	assets := repo.NewVideoAssetRepo(db)
	tasks := task.NewDispatcher(db, publisher, logger)
	uploads := service.NewUploadService(
		store,
		sessions,
		locker,
		assets,
		tasks,
		service.OptionsFromConfig(cfg),
		logger,
	)

	if rdb != nil {
		startExpiryListener(ctx, rdb, cfg.RedisDB, logger, uploads)
	}

	r := router.InitRouter(cfg, logger, router.Handlers{
		Upload: handler.NewUploadHandler(uploads, cfg.MaxUploadSize, logger),
		Video:  handler.NewVideoHandler(service.NewVideoService(assets), logger),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	logger.Info("shutting down http server")
	return srv.Shutdown(shutdownCtx)
}

// startExpiryListener turns expired session keys into chunk cleanup tasks.
// A failure here is logged; uploads keep working without the sweep.
func startExpiryListener(ctx context.Context, rdb *redis.Client, db int, logger *zap.Logger, uploads *service.UploadService) {
	if err := repo.EnableKeyspaceNotifications(ctx, rdb); err != nil {
		logger.Warn("enable redis keyspace notifications failed", zap.Error(err))
		return
	}
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- repo.ListenRedisExpired(ctx, rdb, db, logger, ready, uploads.HandleSessionExpired)
	}()
	select {
	case <-ready:
		logger.Info("listening for expired upload sessions")
	case err := <-errCh:
		logger.Warn("expired session listener stopped", zap.Error(err))
	}
}
