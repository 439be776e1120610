package server

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/config"
	"github.com/dharsanguruparan/straymandu/internal/repository"
	"github.com/dharsanguruparan/straymandu/internal/worker"
)

// RunWorker consumes queued notifications until ctx is cancelled.
func RunWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.StoreMode != config.StorePostgres {
		return errors.New("the notification worker needs STRAYMANDU_STORE=postgres")
	}
	pool, err := OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	srv := asynq.NewServer(RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger.Named("asynq").Sugar(),
	})
	processor := worker.NewProcessor(repository.NewNotificationRepository(pool), logger.Named("worker"))

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info("worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	return srv.Run(processor.Handler())
}
