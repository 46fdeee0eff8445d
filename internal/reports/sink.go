package reports

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotSink stores a rendered snapshot file and returns where it went.
// Prepare runs once before the first snapshot.
type SnapshotSink interface {
	fmt.Stringer
	Prepare() error
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// DirSink writes snapshots into a local directory.
type DirSink struct {
	Dir string
}

func (d DirSink) Prepare() error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return nil
}

func (d DirSink) Put(_ context.Context, name string, data []byte) (string, error) {
	p := filepath.Join(d.Dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return p, nil
}

func (d DirSink) String() string { return d.Dir }

// S3Sink uploads snapshots under a key prefix with the S3 upload manager.
type S3Sink struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Sink(client manager.UploadAPIClient, bucket, prefix string) *S3Sink {
	return &S3Sink{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

func (s *S3Sink) Prepare() error { return nil }

func (s *S3Sink) Put(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.prefix, name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func (s *S3Sink) String() string { return "s3://" + path.Join(s.bucket, s.prefix) }
