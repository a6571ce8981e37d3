package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/tropicaldog17/audtracker/internal/config"
)

// PutObjectAPI is the slice of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader copies export files to a bucket under <prefix>/<date>/.
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Uploader builds an uploader from configuration. Static credentials
// are used when both keys are set; otherwise the default AWS chain applies.
func NewS3Uploader(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*S3Uploader, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return NewS3UploaderWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func NewS3UploaderWithClient(client PutObjectAPI, bucket, prefix string, logger *zap.Logger) *S3Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), logger: logger.Named("s3")}
}

// Key returns the object key for file uploaded on day.
func (u *S3Uploader) Key(file string, day time.Time) string {
	return path.Join(u.prefix, day.UTC().Format("2006-01-02"), filepath.Base(file))
}

// Upload puts each file and returns the keys written. It stops at the first
// failure.
func (u *S3Uploader) Upload(ctx context.Context, day time.Time, files ...string) ([]string, error) {
	var keys []string
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return keys, fmt.Errorf("read %s: %w", f, err)
		}
		key := u.Key(f, day)
		uploadCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		_, err = u.client.PutObject(uploadCtx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType(f)),
		})
		cancel()
		if err != nil {
			return keys, fmt.Errorf("upload %s: %w", key, err)
		}
		u.logger.Info("uploaded", zap.String("bucket", u.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
