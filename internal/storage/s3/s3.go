// Package s3 provides an S3-compatible storage backend for received files.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/internal/metrics"
	"github.com/fruitsalade/dirsync/pkg/models"
	"github.com/fruitsalade/dirsync/pkg/protocol"
)

// Object metadata keys holding the client-supplied timestamps.
const (
	MetaCreatedAt  = "created-at"
	MetaModifiedAt = "modified-at"
)

// ErrConflict is returned when another writer took the key while the body
// was being streamed. The body has been consumed, so the caller cannot
// retry under a different name.
var ErrConflict = errors.New("object was created concurrently")

// Config points the backend at a bucket. Endpoint is set for MinIO and
// other S3-compatible stores and switches to path-style addressing.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Prefix    string
}

// S3Backend stores received files as objects under an optional key prefix.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// New connects to the bucket, creating it if it does not exist yet.
// Static credentials are used when AccessKey is set; otherwise the default
// AWS credential chain applies.
func New(ctx context.Context, cfg Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 backend: bucket not set")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		static := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(static))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	b := &S3Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
	}
	if err := b.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// ensureBucket creates the bucket only when HeadBucket reports it missing.
// Any other failure (credentials, network) is returned as is.
func (b *S3Backend) ensureBucket(ctx context.Context) error {
	start := time.Now()
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.bucket)})
	switch apiErrorCode(err) {
	case "":
		if err != nil {
			metrics.RecordStorageOperation(b.Type(), "head_bucket", time.Since(start), false)
			return fmt.Errorf("s3 backend: head bucket %s: %w", b.bucket, err)
		}
		metrics.RecordStorageOperation(b.Type(), "head_bucket", time.Since(start), true)
		return nil
	case "NotFound", "NoSuchBucket":
	default:
		metrics.RecordStorageOperation(b.Type(), "head_bucket", time.Since(start), false)
		return fmt.Errorf("s3 backend: head bucket %s: %w", b.bucket, err)
	}

	start = time.Now()
	_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.bucket)})
	metrics.RecordStorageOperation(b.Type(), "create_bucket", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("s3 backend: create bucket %s: %w", b.bucket, err)
	}
	logging.Info("created bucket", zap.String("bucket", b.bucket))
	return nil
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

// Create streams body to key. An existing object is detected with a HEAD
// request before the body is read; the put itself carries If-None-Match so
// that a concurrent writer is reported as ErrConflict rather than replaced.
func (b *S3Backend) Create(ctx context.Context, key string, body io.Reader) (int64, error) {
	exists, err := b.Exists(ctx, key)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, fmt.Errorf("create %s: %w", key, fs.ErrExist)
	}

	start := time.Now()
	counter := &countingReader{r: body}
	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.objectKey(key)),
		Body:        counter,
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		metrics.RecordStorageOperation(b.Type(), "put_object", time.Since(start), false)
		if apiErrorCode(err) == "PreconditionFailed" {
			return counter.n, fmt.Errorf("put object %s: %w", key, ErrConflict)
		}
		return counter.n, fmt.Errorf("put object %s: %w", key, err)
	}

	metrics.RecordStorageOperation(b.Type(), "put_object", time.Since(start), true)
	logging.Debug("S3 put object", zap.String("key", key), zap.Int64("size", counter.n))
	return counter.n, nil
}

// SetTimes stores the timestamps as object metadata by copying the object
// onto itself with a replaced metadata set.
func (b *S3Backend) SetTimes(ctx context.Context, key string, times models.FileTimes) error {
	start := time.Now()
	objKey := b.objectKey(key)

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(b.bucket),
		Key:               aws.String(objKey),
		CopySource:        aws.String(b.bucket + "/" + url.PathEscape(objKey)),
		MetadataDirective: types.MetadataDirectiveReplace,
		Metadata: map[string]string{
			MetaCreatedAt:  protocol.FormatTime(times.CreatedAt),
			MetaModifiedAt: protocol.FormatTime(times.ModifiedAt),
		},
	})
	if err != nil {
		metrics.RecordStorageOperation(b.Type(), "set_times", time.Since(start), false)
		return fmt.Errorf("set times %s: %w", key, err)
	}

	metrics.RecordStorageOperation(b.Type(), "set_times", time.Since(start), true)
	return nil
}

// Exists checks if an object exists in S3.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		switch apiErrorCode(err) {
		case "NotFound", "NoSuchKey":
			metrics.RecordStorageOperation(b.Type(), "head_object", time.Since(start), true)
			return false, nil
		}
		metrics.RecordStorageOperation(b.Type(), "head_object", time.Since(start), false)
		return false, fmt.Errorf("head object %s: %w", key, err)
	}

	metrics.RecordStorageOperation(b.Type(), "head_object", time.Since(start), true)
	return true, nil
}

func (b *S3Backend) Type() string { return "s3" }

func (b *S3Backend) Close() error { return nil }

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
