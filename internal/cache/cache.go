// Package cache keeps short-lived "this task already went through" markers
// so duplicate deliveries can be acknowledged without redoing the work.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/glekoz/resize-service/internal/config"
	"github.com/redis/go-redis/v9"
)

// KV is the subset of redis.Cmdable the cache uses.
type KV interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type Cache struct {
	Redis     KV
	Namespace string
	TTL       time.Duration
}

func NewCache(namespace string, kv KV, ttl time.Duration) *Cache {
	return &Cache{Redis: kv, Namespace: namespace, TTL: ttl}
}

// NewClient connects and pings a single-node Redis.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	cl := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := cl.Ping(pingCtx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("error pinging redis server: %w", err)
	}
	return cl, nil
}

func (c *Cache) key(postID int64, imagePath string) string {
	return c.Namespace + ":" + strconv.FormatInt(postID, 10) + ":" + imagePath
}

// Seen reports whether the task was completed within the TTL.
func (c *Cache) Seen(ctx context.Context, postID int64, imagePath string) (bool, error) {
	n, err := c.Redis.Exists(ctx, c.key(postID, imagePath)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Cache) Mark(ctx context.Context, postID int64, imagePath string) error {
	return c.Redis.Set(ctx, c.key(postID, imagePath), time.Now().Unix(), c.TTL).Err()
}
