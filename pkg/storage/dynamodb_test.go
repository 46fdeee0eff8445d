package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps items keyed by their "name" attribute.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	table string
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemName(attrs map[string]types.AttributeValue) string {
	if s, ok := attrs["name"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.table = *params.TableName
	return &dynamodb.GetItemOutput{Item: f.items[itemName(params.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.table = *params.TableName
	f.items[itemName(params.Item)] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestDynamoDBBackend(t *testing.T) {
	fake := newFakeDynamo()
	exerciseSlot(t, NewDynamoDBBackend(fake, "portal-state"))

	assert.Equal(t, "portal-state", fake.table)
	item := fake.items["projects"]
	require.NotNil(t, item)
	assert.IsType(t, &types.AttributeValueMemberB{}, item["data"])
	assert.IsType(t, &types.AttributeValueMemberS{}, item["updated_at"])
}

func TestDynamoDBBackendErrors(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	slot := NewDynamoDBBackend(fake, "t").Slot("wallet")

	_, err := slot.Load(context.Background())
	assert.ErrorContains(t, err, "throttled")
	assert.NotErrorIs(t, err, ErrSlotEmpty)

	assert.Error(t, slot.Save(context.Background(), []byte(`{}`)))
}

func TestDynamoDBBackendCorruptItem(t *testing.T) {
	fake := newFakeDynamo()
	fake.items["wallet"] = map[string]types.AttributeValue{
		"name": &types.AttributeValueMemberS{Value: "wallet"},
		"data": &types.AttributeValueMemberN{Value: "12"},
	}

	_, err := NewDynamoDBBackend(fake, "t").Slot("wallet").Load(context.Background())
	assert.ErrorIs(t, err, ErrCorruptPersistedState)
}
