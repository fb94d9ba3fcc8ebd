package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures the S3 store.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // non-empty for S3-compatible services (MinIO, R2)
	PathStyle bool   // required by most S3-compatible endpoints
}

// S3 stores bytes as objects in an S3 bucket. Locations map directly
// to object keys; Append is emulated with a read-modify-write since S3
// objects are immutable.
type S3 struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3 creates an S3 store using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		logger: slog.Default().With("store", "s3", "bucket", cfg.Bucket),
	}, nil
}

// Read implements Store.
func (s *S3) Read(ctx context.Context, location string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("s3 get %s: %w", location, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Write implements Store.
func (s *S3) Write(ctx context.Context, location string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", location, err)
	}
	s.logger.Debug("object written", "key", location, "bytes", len(data))
	return nil
}

// Copy implements Store.
func (s *S3) Copy(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(s.bucket + "/" + src),
	})
	if err != nil {
		if isNotFound(err) {
			return ErrNotExist
		}
		return fmt.Errorf("s3 copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Delete implements Store.
func (s *S3) Delete(ctx context.Context, location string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", location, err)
	}
	return nil
}

// List implements Store.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Rename implements Store as copy-then-delete; S3 has no native move.
func (s *S3) Rename(ctx context.Context, src, dst string) error {
	if err := s.Copy(ctx, src, dst); err != nil {
		return err
	}
	return s.Delete(ctx, src)
}

// Append implements Store. Objects are immutable, so append is a
// read-modify-write; callers appending concurrently race.
func (s *S3) Append(ctx context.Context, location string, data []byte) error {
	existing, err := s.Read(ctx, location)
	if err != nil && !errors.Is(err, ErrNotExist) {
		return err
	}
	return s.Write(ctx, location, append(existing, data...))
}

// Exists implements Store.
func (s *S3) Exists(ctx context.Context, location string) (bool, error) {
	_, err := s.head(ctx, location)
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats implements Store.
func (s *S3) Stats(ctx context.Context, location string) (*Stat, error) {
	return s.head(ctx, location)
}

func (s *S3) head(ctx context.Context, location string) (*Stat, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("s3 head %s: %w", location, err)
	}
	return &Stat{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}
