package storage

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	conf "github.com/glekoz/resize-service/internal/config"
	"github.com/glekoz/resize-service/internal/models"
)

// S3API is the part of *s3.Client the storage needs.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Storage is a bucket-scoped blob store on any S3-compatible backend (MinIO in dev).
type Storage struct {
	client  S3API
	bucket  string
	region  string
	baseURL string
}

func NewStorage(ctx context.Context, cfg conf.MinIOConfig) (*Storage, error) {
	loc := "Storage.NewStorage"
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, models.NewError(loc, "aws config", models.ErrTransport, err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseURL())
		o.UsePathStyle = true
	})
	return New(client, cfg), nil
}

// New wraps an existing client; tests pass a fake here.
func New(client S3API, cfg conf.MinIOConfig) *Storage {
	return &Storage{
		client:  client,
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		baseURL: cfg.BaseURL(),
	}
}

func (s *Storage) Bucket() string { return s.bucket }

// EnsureBucket creates the bucket unless it is already there. Several workers
// may race on it at startup, so "already exists" counts as success.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	loc := "Storage.EnsureBucket"
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	_, err = s.client.CreateBucket(ctx, in)
	if err == nil || bucketExists(err) {
		return nil
	}
	return models.NewError(loc, s.bucket, classify(err), err)
}

func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	loc := "Storage.Get"
	if key == "" {
		return nil, models.NewError(loc, `key == ""`, models.ErrInvalidInput, nil)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, models.NewError(loc, key, classify(err), err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, models.NewError(loc, key, models.ErrTransport, err)
	}
	return buf.Bytes(), nil
}

// Put stores data under key, replacing whatever was there.
func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	loc := "Storage.Put"
	if key == "" {
		return "", models.NewError(loc, `key == ""`, models.ErrInvalidInput, nil)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", models.NewError(loc, key, classify(err), err)
	}
	return key, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	loc := "Storage.Delete"
	if key == "" {
		return models.NewError(loc, `key == ""`, models.ErrInvalidInput, nil)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return models.NewError(loc, key, classify(err), err)
	}
	return nil
}

// URL is the path-style address of key, the way the posts API links images.
func (s *Storage) URL(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + s.bucket + "/" + strings.Join(segs, "/")
}

var capacityCodes = map[string]struct{}{
	"QuotaExceeded":                  {},
	"EntityTooLarge":                 {},
	"XMinioStorageFull":              {},
	"XMinioAdminBucketQuotaExceeded": {},
	"XMinioBucketQuotaExceeded":      {},
	"ServiceUnavailableStorageFull":  {},
	"TooManyBuckets":                 {},
}

func classify(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return models.ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" {
			return models.ErrNotFound
		}
		if _, ok := capacityCodes[code]; ok {
			return models.ErrCapacity
		}
	}
	return models.ErrTransport
}

func bucketExists(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return true
		}
	}
	return false
}
