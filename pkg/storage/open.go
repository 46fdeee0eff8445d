package storage

import (
	"context"
	"fmt"

	"carbon-scribe/restoration-portal/pkg/cloud"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverS3       = "s3"
	DriverMongo    = "mongo"
	DriverDynamoDB = "dynamodb"
)

// Options selects and configures a backend.
type Options struct {
	Driver        string
	Dir           string
	SQLitePath    string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	AWS           cloud.AWSOptions
	S3            S3Options
	DynamoDB      DynamoDBOptions
}

// Open builds the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryBackend(), nil
	case "", DriverFile:
		return NewFileBackend(opts.Dir)
	case DriverSQLite:
		return OpenSQLite(opts.SQLitePath)
	case DriverPostgres:
		return OpenPostgres(opts.PostgresDSN)
	case DriverS3:
		client, err := NewS3Client(ctx, opts.AWS, opts.S3)
		if err != nil {
			return nil, err
		}
		return NewS3Backend(client, opts.S3.Bucket, opts.S3.Prefix), nil
	case DriverMongo:
		return OpenMongo(ctx, opts.MongoURI, opts.MongoDatabase)
	case DriverDynamoDB:
		client, err := NewDynamoDBClient(ctx, opts.AWS, opts.DynamoDB)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBBackend(client, opts.DynamoDB.Table), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
