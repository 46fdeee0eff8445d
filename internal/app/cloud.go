package app

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/config"
	"carbon-scribe/restoration-portal/internal/notifications"
	"carbon-scribe/restoration-portal/internal/notifications/websocket"
	"carbon-scribe/restoration-portal/internal/reports"
	"carbon-scribe/restoration-portal/pkg/cloud"
	"carbon-scribe/restoration-portal/pkg/storage"
)

// publisher returns the websocket manager alone, or fanned out with an SNS
// topic when one is configured.
func publisher(ctx context.Context, cfg *config.Config, sockets *websocket.Manager, client notifications.SNSClient, logger *zap.Logger) (notifications.Publisher, error) {
	topic := cfg.Notifications.SNSTopicARN
	if topic == "" {
		return sockets, nil
	}
	if client == nil {
		awsCfg, err := cloud.LoadAWSConfig(ctx, cfg.AWSOptions())
		if err != nil {
			return nil, err
		}
		client = sns.NewFromConfig(awsCfg)
	}
	logger.Info("Forwarding events to SNS", zap.String("topic_arn", topic))
	return notifications.Fanout{sockets, notifications.NewSNSPublisher(client, topic)}, nil
}

// snapshotSink picks the S3 bucket when configured, otherwise the local
// snapshot directory. The bucket shares endpoint settings with S3 storage.
func snapshotSink(ctx context.Context, cfg *config.Config, uploads UploadClient) (reports.SnapshotSink, error) {
	rc := cfg.Reports
	if rc.SnapshotBucket == "" {
		return reports.DirSink{Dir: rc.SnapshotDir}, nil
	}
	if uploads == nil {
		client, err := storage.NewS3Client(ctx, cfg.AWSOptions(), storage.S3Options{
			Bucket:       rc.SnapshotBucket,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		uploads = client
	}
	return reports.NewS3Sink(uploads, rc.SnapshotBucket, rc.SnapshotPrefix), nil
}
