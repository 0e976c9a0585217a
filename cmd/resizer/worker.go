package main

import (
	"context"
	"fmt"

	"github.com/glekoz/resize-service/application"
	"github.com/glekoz/resize-service/data/db/repository"
	"github.com/glekoz/resize-service/data/storage"
	"github.com/glekoz/resize-service/internal/cache"
	"github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/logging"
	"github.com/glekoz/resize-service/presentation/amt"
	"github.com/glekoz/resize-service/presentation/grpc"
	"github.com/spf13/cobra"
)

const doneNamespace = "resizer:done"

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume resize tasks until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer flush()

	store, err := storage.NewStorage(ctx, cfg.MinIO)
	if err != nil {
		logger.Error(ctx, "object store client", "error", err)
		return err
	}
	if err := waitFor(ctx, logger, "bucket", cfg.RabbitMQ.ReconnectDelay, store.EnsureBucket); err != nil {
		return interrupted(ctx, err)
	}

	var repo *repository.Repository
	err = waitFor(ctx, logger, "database", cfg.RabbitMQ.ReconnectDelay, func(ctx context.Context) error {
		r, err := repository.NewRepository(ctx, cfg.Postgres.DSN(), cfg.Postgres.Table)
		repo = r
		return err
	})
	if err != nil {
		return interrupted(ctx, err)
	}
	defer repo.Close()

	app := application.NewApp(store, repo, application.NewThumbnailer(cfg.Thumb), logger)
	if cfg.Redis.Enabled() {
		rc, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn(ctx, "redis unavailable, running without done-markers", "error", err)
		} else {
			defer rc.Close()
			app.Cache = cache.NewCache(doneNamespace, rc, cfg.Redis.TTL)
		}
	}

	handler := amt.NewAMTHandler(app, logger, cfg.RabbitMQ.Queue, cfg.Worker)
	consumer := amt.NewConsumer(cfg.RabbitMQ, cfg.Worker.DeadLetterQueue, handler, logger)

	health := grpc.NewHealthServer(logger)
	consumer.OnState = health.SetServing

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	healthDone := goServe(ctx, logger, "health endpoint", func(ctx context.Context) error {
		return health.Run(ctx, cfg.HealthAddr)
	})

	logger.Info(ctx, "worker started",
		"queue", cfg.RabbitMQ.Queue,
		"bucket", store.Bucket(),
		"box", fmt.Sprintf("%dx%d", cfg.Thumb.Width, cfg.Thumb.Height),
		"max_deliveries", cfg.Worker.MaxDeliveries,
	)
	runErr := consumer.Run(ctx)

	cancel()
	<-healthDone
	if runErr != nil {
		logger.Error(ctx, "consumer stopped", "error", runErr)
		return runErr
	}
	logger.Info(ctx, "worker stopped")
	return nil
}

// interrupted hides err when it only reports that startup was canceled.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// goServe runs serve in the background and logs its failure right away,
// without waiting for the caller to collect it. The returned channel is
// closed once serve has returned.
func goServe(ctx context.Context, logger logging.Logger, what string, serve func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := serve(ctx); err != nil {
			logger.Error(ctx, what+" failed", "error", err)
		}
	}()
	return done
}
