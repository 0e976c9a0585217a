package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/glekoz/resize-service/data/storage"
	"github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/models"
	"github.com/glekoz/resize-service/presentation/amt"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
)

func enqueueCmd() *cobra.Command {
	var (
		postID int64
		folder string
	)
	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Upload an original image and publish a resize task for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := runEnqueue(cmd.Context(), args[0], postID, folder)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().Int64Var(&postID, "post-id", 0, "ID of the post that owns the image")
	cmd.Flags().StringVar(&folder, "folder", "posts", "Key prefix for the original")
	cmd.MarkFlagRequired("post-id")
	return cmd
}

func runEnqueue(ctx context.Context, path string, postID int64, folder string) (string, error) {
	if postID <= 0 {
		return "", errors.New("--post-id must be positive")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%s: not an image (%s)", path, mt.String())
	}

	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	logger, flush, err := newLogger(cfg)
	if err != nil {
		return "", err
	}
	defer flush()

	store, err := storage.NewStorage(ctx, cfg.MinIO)
	if err != nil {
		return "", err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return "", err
	}

	key := originalKey(folder, mt.Extension())
	if _, err := store.Put(ctx, key, data, mt.String()); err != nil {
		return "", err
	}
	log := logger.With("image_path", key, "post_id", postID)

	if err := publishTask(ctx, cfg.RabbitMQ, key, postID); err != nil {
		log.Error(ctx, "publish failed, removing original", "error", err)
		if derr := store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			log.Error(ctx, "original left behind", "error", derr)
		}
		return "", err
	}
	log.Info(ctx, "task enqueued", "url", store.URL(key))
	return key, nil
}

func publishTask(ctx context.Context, cfg config.RabbitMQConfig, key string, postID int64) error {
	body, err := json.Marshal(models.NewResizeTaskMessage(key, postID))
	if err != nil {
		return err
	}
	pub, err := amt.Dial(cfg.URL(), cfg.Heartbeat, cfg.Queue)
	if err != nil {
		return err
	}
	defer pub.Close()
	return pub.Publish(ctx, cfg.Queue, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// originalKey places an upload under folder with a random name, the way
// the posts API names originals.
func originalKey(folder, ext string) string {
	name := uuid.NewString() + ext
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
