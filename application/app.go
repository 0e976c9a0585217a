package application

import (
	"context"

	"github.com/glekoz/resize-service/internal/logging"
	"github.com/glekoz/resize-service/internal/models"
)

type StorageAPI interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	URL(key string) string
}

type RepositoryAPI interface {
	UpdateThumbnail(ctx context.Context, postID int64, key string) error
}

type ThumbnailerAPI interface {
	Make(ctx context.Context, data []byte) ([]byte, error)
}

// CacheAPI remembers tasks that already went all the way through.
type CacheAPI interface {
	Seen(ctx context.Context, postID int64, imagePath string) (bool, error)
	Mark(ctx context.Context, postID int64, imagePath string) error
}

type App struct {
	Storage    StorageAPI
	Repo       RepositoryAPI
	Thumbnails ThumbnailerAPI
	// Cache is optional.
	Cache  CacheAPI
	Logger logging.Logger
}

func NewApp(s StorageAPI, r RepositoryAPI, t ThumbnailerAPI, logger logging.Logger) *App {
	return &App{Storage: s, Repo: r, Thumbnails: t, Logger: logger}
}

// Process runs one task: download the original, build the thumbnail,
// upload it under ThumbnailKey and point the post at it. It never acks or
// nacks anything; the returned Result tells the caller what to do.
func (a *App) Process(ctx context.Context, task models.ResizeTask) Result {
	log := a.Logger.With("image_path", task.ImagePath, "post_id", task.PostID)
	key := ThumbnailKey(task.ImagePath)

	if a.Cache != nil {
		seen, err := a.Cache.Seen(ctx, task.PostID, task.ImagePath)
		if err != nil {
			log.Warn(ctx, "done-marker lookup failed", "error", err)
		} else if seen {
			log.Info(ctx, "task already processed", "thumbnail", key)
			return Result{Verdict: VerdictDone, Stage: StageReceived, Duplicate: true}
		}
	}

	log.Debug(ctx, "downloading original")
	original, err := a.Storage.Get(ctx, task.ImagePath)
	if err != nil {
		return Failed(StageDownloading, err)
	}

	log.Debug(ctx, "building thumbnail", "bytes", len(original))
	thumb, err := a.Thumbnails.Make(ctx, original)
	if err != nil {
		return Failed(StageTransforming, err)
	}

	log.Debug(ctx, "uploading thumbnail", "thumbnail", key, "bytes", len(thumb))
	if _, err := a.Storage.Put(ctx, key, thumb, ThumbnailContentType); err != nil {
		return Failed(StageUploading, err)
	}

	if err := a.Repo.UpdateThumbnail(ctx, task.PostID, key); err != nil {
		res := Failed(StageUpdating, err)
		if res.Verdict == VerdictSkip {
			// the thumbnail stays in the bucket; the next task for this post overwrites it
			log.Warn(ctx, "post not found, thumbnail left unreferenced", "thumbnail", key)
		}
		return res
	}

	if a.Cache != nil {
		if err := a.Cache.Mark(ctx, task.PostID, task.ImagePath); err != nil {
			log.Warn(ctx, "done-marker write failed", "error", err)
		}
	}

	url := a.Storage.URL(key)
	log.Info(ctx, "thumbnail stored", "thumbnail", key, "url", url, "bytes", len(thumb))
	return Result{
		Verdict: VerdictDone,
		Stage:   StageUpdating,
		Thumbnail: &models.Thumbnail{
			PostID: task.PostID,
			Key:    key,
			URL:    url,
			Size:   len(thumb),
		},
	}
}
