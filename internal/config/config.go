// Package config reads the resizer settings from the environment.
// Every key has a default that works inside the docker-compose network.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RabbitMQ RabbitMQConfig
	MinIO    MinIOConfig
	Postgres PostgresConfig
	Thumb    ThumbnailConfig
	Worker   WorkerConfig
	Redis    RedisConfig

	HealthAddr  string
	SentryDSN   string
	Environment string
	LogLevel    string
}

type RabbitMQConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Queue          string
	Heartbeat      time.Duration
	ReconnectDelay time.Duration
}

// URL is the amqp:// address with escaped credentials.
func (c RabbitMQConfig) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/",
	}
	return u.String()
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Scheme    string
	Region    string
}

func (c MinIOConfig) BaseURL() string {
	return c.Scheme + "://" + c.Endpoint
}

type PostgresConfig struct {
	Host     string
	Port     int
	DB       string
	User     string
	Password string
	Table    string
}

func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DB,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type ThumbnailConfig struct {
	Width   int
	Height  int
	Quality int
}

type WorkerConfig struct {
	TaskTimeout     time.Duration
	MaxDeliveries   int
	DeadLetterQueue string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

var defaults = map[string]any{
	"RABBITMQ_HOST":      "rabbitmq",
	"RABBITMQ_PORT":      5672,
	"RABBITMQ_USER":      "guest",
	"RABBITMQ_PASSWORD":  "guest",
	"RESIZE_QUEUE":       "image_resize_queue",
	"RABBITMQ_HEARTBEAT": "600s",
	"RECONNECT_DELAY":    "5s",

	"MINIO_ENDPOINT":   "minio:9000",
	"MINIO_ACCESS_KEY": "minio",
	"MINIO_SECRET_KEY": "minio_admin",
	"MINIO_BUCKET":     "social-media-bucket",
	"MINIO_SCHEME":     "http",
	"MINIO_REGION":     "us-east-1",

	"POSTGRES_HOST":     "db",
	"POSTGRES_PORT":     5432,
	"POSTGRES_DB":       "social_media_db",
	"POSTGRES_USER":     "postgres",
	"POSTGRES_PASSWORD": "postgres",
	"POSTS_TABLE":       "posts_post",

	"THUMBNAIL_WIDTH":   300,
	"THUMBNAIL_HEIGHT":  300,
	"THUMBNAIL_QUALITY": 85,

	"TASK_TIMEOUT":      "2m",
	"MAX_DELIVERIES":    0,
	"DEAD_LETTER_QUEUE": "",

	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"DEDUPE_TTL":     "24h",

	"HEALTH_ADDR": ":8080",
	"SENTRY_DSN":  "",
	"ENVIRONMENT": "development",
	"LOG_LEVEL":   "info",
}

// Load builds a Config from defaults overlaid with environment variables.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	cfg := &Config{
		RabbitMQ: RabbitMQConfig{
			Host:           v.GetString("RABBITMQ_HOST"),
			Port:           v.GetInt("RABBITMQ_PORT"),
			User:           v.GetString("RABBITMQ_USER"),
			Password:       v.GetString("RABBITMQ_PASSWORD"),
			Queue:          v.GetString("RESIZE_QUEUE"),
			Heartbeat:      v.GetDuration("RABBITMQ_HEARTBEAT"),
			ReconnectDelay: v.GetDuration("RECONNECT_DELAY"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			Scheme:    v.GetString("MINIO_SCHEME"),
			Region:    v.GetString("MINIO_REGION"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetInt("POSTGRES_PORT"),
			DB:       v.GetString("POSTGRES_DB"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			Table:    v.GetString("POSTS_TABLE"),
		},
		Thumb: ThumbnailConfig{
			Width:   v.GetInt("THUMBNAIL_WIDTH"),
			Height:  v.GetInt("THUMBNAIL_HEIGHT"),
			Quality: v.GetInt("THUMBNAIL_QUALITY"),
		},
		Worker: WorkerConfig{
			TaskTimeout:     v.GetDuration("TASK_TIMEOUT"),
			MaxDeliveries:   v.GetInt("MAX_DELIVERIES"),
			DeadLetterQueue: v.GetString("DEAD_LETTER_QUEUE"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      v.GetDuration("DEDUPE_TTL"),
		},
		HealthAddr:  v.GetString("HEALTH_ADDR"),
		SentryDSN:   v.GetString("SENTRY_DSN"),
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch {
	case c.RabbitMQ.Queue == "":
		return fmt.Errorf("config: RESIZE_QUEUE must not be empty")
	case c.RabbitMQ.ReconnectDelay <= 0:
		return fmt.Errorf("config: RECONNECT_DELAY must be positive, got %v", c.RabbitMQ.ReconnectDelay)
	case c.MinIO.Bucket == "":
		return fmt.Errorf("config: MINIO_BUCKET must not be empty")
	case c.Postgres.Table == "":
		return fmt.Errorf("config: POSTS_TABLE must not be empty")
	case c.Thumb.Width <= 0 || c.Thumb.Height <= 0:
		return fmt.Errorf("config: thumbnail box must be positive, got %dx%d", c.Thumb.Width, c.Thumb.Height)
	case c.Thumb.Quality < 1 || c.Thumb.Quality > 100:
		return fmt.Errorf("config: THUMBNAIL_QUALITY must be in [1,100], got %d", c.Thumb.Quality)
	case c.Worker.TaskTimeout <= 0:
		return fmt.Errorf("config: TASK_TIMEOUT must be positive, got %v", c.Worker.TaskTimeout)
	case c.Worker.MaxDeliveries < 0:
		return fmt.Errorf("config: MAX_DELIVERIES must not be negative")
	case c.Worker.DeadLetterQueue != "" && c.Worker.DeadLetterQueue == c.RabbitMQ.Queue:
		return fmt.Errorf("config: DEAD_LETTER_QUEUE must differ from RESIZE_QUEUE")
	}
	return nil
}
