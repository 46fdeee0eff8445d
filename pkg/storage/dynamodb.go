package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"carbon-scribe/restoration-portal/pkg/cloud"
)

// DynamoDBClient is the subset of *dynamodb.Client used for slots.
type DynamoDBClient interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoDBOptions configures the DynamoDB slot backend. The table needs a
// string partition key named "name".
type DynamoDBOptions struct {
	Table    string
	Endpoint string
}

// NewDynamoDBClient builds an SDK client, optionally against a custom
// endpoint such as DynamoDB Local.
func NewDynamoDBClient(ctx context.Context, creds cloud.AWSOptions, opts DynamoDBOptions) (*dynamodb.Client, error) {
	cfg, err := cloud.LoadAWSConfig(ctx, creds)
	if err != nil {
		return nil, err
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

type slotItem struct {
	Name      string    `dynamodbav:"name"`
	Data      []byte    `dynamodbav:"data"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

// DynamoDBBackend stores each slot as one item keyed by slot name.
type DynamoDBBackend struct {
	client DynamoDBClient
	table  string
	now    func() time.Time
}

func NewDynamoDBBackend(client DynamoDBClient, table string) *DynamoDBBackend {
	return &DynamoDBBackend{client: client, table: table, now: time.Now}
}

func (b *DynamoDBBackend) Slot(name string) Slot {
	return &dynamoSlot{backend: b, name: name}
}

func (b *DynamoDBBackend) Close() error { return nil }

type dynamoSlot struct {
	backend *DynamoDBBackend
	name    string
}

func (s *dynamoSlot) Load(ctx context.Context) ([]byte, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"name": s.name})
	if err != nil {
		return nil, err
	}
	out, err := s.backend.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.backend.table),
		Key:            key,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", s.name, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrSlotEmpty
	}

	var item slotItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPersistedState, err)
	}
	return item.Data, nil
}

func (s *dynamoSlot) Save(ctx context.Context, data []byte) error {
	item, err := attributevalue.MarshalMap(slotItem{
		Name:      s.name,
		Data:      data,
		UpdatedAt: s.backend.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode slot %s: %w", s.name, err)
	}
	_, err = s.backend.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.backend.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put slot %s: %w", s.name, err)
	}
	return nil
}
