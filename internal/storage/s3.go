package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3Options configures an S3-compatible bucket (AWS S3 or MinIO)
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Storage implements Storage interface for an S3 bucket
type S3Storage struct {
	client *s3.Client
	bucket string
	logger *zap.Logger
}

// NewS3Storage creates an S3 storage. Static keys are used when both are
// set; otherwise the default AWS credential chain applies.
func NewS3Storage(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Storage, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required for s3 storage")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	logger.Info("S3 storage initialized",
		zap.String("bucket", opts.Bucket),
		zap.String("region", region),
		zap.Bool("customEndpoint", opts.Endpoint != ""),
	)

	return &S3Storage{client: client, bucket: opts.Bucket, logger: logger}, nil
}

// Upload puts an object into the bucket. The body is buffered so the SDK
// can sign the payload and so the size is known up front.
func (s *S3Storage) Upload(ctx context.Context, filename string, contentType string, data io.Reader) (string, int64, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read upload: %w", err)
	}
	key := objectKey(filename, time.Now())

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to put object: %w", err)
	}

	s.logger.Info("File uploaded to S3",
		zap.String("key", key),
		zap.String("bucket", s.bucket),
		zap.Int("size", len(body)),
	)
	return key, int64(len(body)), nil
}

// Download opens an object for reading
func (s *S3Storage) Download(ctx context.Context, storagePath string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, storagePath)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Delete removes an object. S3 deletes are idempotent.
func (s *S3Storage) Delete(ctx context.Context, storagePath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storagePath),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	s.logger.Info("File deleted from S3", zap.String("key", storagePath), zap.String("bucket", s.bucket))
	return nil
}
