package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/logging"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/cobra"
)

const sentryFlushTimeout = 2 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "resizer",
		Short:        "Builds thumbnails for uploaded post images",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(enqueueCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// newLogger returns the JSON logger, wrapped with Sentry reporting when
// SENTRY_DSN is set. flush must be called before exit.
func newLogger(cfg *config.Config) (logger logging.Logger, flush func(), err error) {
	base := logging.NewJSON(os.Stdout, cfg.LogLevel)
	if cfg.SentryDSN == "" {
		return base, func() {}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		ServerName:  "resizer",
	})
	if err != nil {
		return nil, nil, err
	}
	hub := sentry.NewHub(client, sentry.NewScope())
	return logging.NewSentryLogger(base, hub), func() { hub.Flush(sentryFlushTimeout) }, nil
}

// waitFor retries fn with a fixed delay until it succeeds or ctx ends.
// Dependencies started by the same compose file may come up after us.
func waitFor(ctx context.Context, logger logging.Logger, what string, delay time.Duration, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, retry.NewConstant(delay), func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			logger.Warn(ctx, what+" not ready, retrying", "error", err, "delay", delay.String())
			return retry.RetryableError(err)
		}
		return nil
	})
}
