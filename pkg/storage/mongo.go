package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type slotDocument struct {
	Name      string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend keeps slots as documents keyed by slot name.
type MongoBackend struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects to uri and uses database.state_slots.
func OpenMongo(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return &MongoBackend{
		client:     client,
		collection: client.Database(database).Collection("state_slots"),
	}, nil
}

func (b *MongoBackend) Slot(name string) Slot {
	return &mongoSlot{collection: b.collection, name: name}
}

func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}

type mongoSlot struct {
	collection *mongo.Collection
	name       string
}

func (s *mongoSlot) Load(ctx context.Context) ([]byte, error) {
	var doc slotDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": s.name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %q: %w", s.name, err)
	}
	return []byte(doc.Payload), nil
}

func (s *mongoSlot) Save(ctx context.Context, data []byte) error {
	doc := slotDocument{Name: s.name, Payload: string(data), UpdatedAt: time.Now()}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": s.name}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save slot %q: %w", s.name, err)
	}
	return nil
}
