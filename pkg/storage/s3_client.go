package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"carbon-scribe/restoration-portal/pkg/cloud"
)

// S3Client is the subset of *s3.Client used for slots.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures the S3 slot backend.
type S3Options struct {
	Bucket       string
	Prefix       string
	Endpoint     string
	UsePathStyle bool
}

// NewS3Client builds an SDK client, optionally against a custom endpoint.
func NewS3Client(ctx context.Context, creds cloud.AWSOptions, opts S3Options) (*s3.Client, error) {
	cfg, err := cloud.LoadAWSConfig(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	}), nil
}

// S3Backend stores each slot as s3://bucket/prefix/name.json.
type S3Backend struct {
	client S3Client
	bucket string
	prefix string
}

func NewS3Backend(client S3Client, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

func (b *S3Backend) Slot(name string) Slot {
	return &s3Slot{backend: b, key: path.Join(b.prefix, name+".json")}
}

func (b *S3Backend) Close() error { return nil }

type s3Slot struct {
	backend *S3Backend
	key     string
}

func (s *s3Slot) Load(ctx context.Context) ([]byte, error) {
	out, err := s.backend.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.backend.bucket),
		Key:    aws.String(s.key),
	})
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.key, err)
	}
	return data, nil
}

func (s *s3Slot) Save(ctx context.Context, data []byte) error {
	_, err := s.backend.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.backend.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", s.key, err)
	}
	return nil
}
