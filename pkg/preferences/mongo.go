package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UsersCollection holds one document per user, keyed by user id.
const UsersCollection = "users"

var _ Store = (*MongoStore)(nil)

type mongoRecord struct {
	ID              string    `bson:"_id"`
	AllowAITraining bool      `bson:"allowAiTraining"`
	UpdatedAt       time.Time `bson:"updatedAt"`
}

// MongoStore persists records as users/{uid} documents.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// OpenMongo connects to uri and uses the users collection of database.
func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("preferences: mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("preferences: mongo database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("preferences: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("preferences: ping mongo: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(UsersCollection),
	}, nil
}

func (m *MongoStore) Get(ctx context.Context, uid string) (Record, error) {
	var doc mongoRecord

	err := m.collection.FindOne(ctx, bson.M{"_id": uid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	return Record{UserID: doc.ID, AllowAITraining: doc.AllowAITraining, UpdatedAt: doc.UpdatedAt.UTC()}, nil
}

// Put merges the record into the user's document, creating it if needed.
func (m *MongoStore) Put(ctx context.Context, rec Record) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": rec.UserID},
		bson.M{"$set": bson.M{
			"allowAiTraining": rec.AllowAITraining,
			"updatedAt":       rec.UpdatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
