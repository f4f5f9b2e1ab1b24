package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type sessionDocument struct {
	ID        string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoBackend stores one document per session. The version field doubles as
// the update and delete filter, so a stale writer matches nothing.
type MongoBackend struct {
	collection *mongo.Collection
	ttl        time.Duration
}

// OpenMongoBackend connects to uri, checks the server answers and makes sure
// the expiry index on the sessions collection exists.
func OpenMongoBackend(ctx context.Context, uri, database string, ttl time.Duration) (*MongoBackend, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("cart-service").
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	backend := NewMongoBackend(client.Database(database), ttl)
	if err := backend.CreateIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return backend, nil
}

func NewMongoBackend(db *mongo.Database, ttl time.Duration) *MongoBackend {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MongoBackend{
		collection: db.Collection("sessions"),
		ttl:        ttl,
	}
}

func (m *MongoBackend) Get(ctx context.Context, id string) (Record, bool, error) {
	var doc sessionDocument
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to get session: %w", err)
	}
	return Record{Version: uint64(doc.Version), Payload: []byte(doc.Payload)}, true, nil
}

func (m *MongoBackend) CompareAndSet(ctx context.Context, id string, expected uint64, payload []byte) (uint64, error) {
	now := time.Now()
	next := expected + 1

	if expected == 0 {
		_, err := m.collection.InsertOne(ctx, sessionDocument{
			ID:        id,
			Version:   int64(next),
			Payload:   string(payload),
			UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return 0, fmt.Errorf("%w: session %s already exists", ErrVersionConflict, id)
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert session: %w", err)
		}
		return next, nil
	}

	filter := bson.M{"_id": id, "version": int64(expected)}
	update := bson.M{
		"$set": bson.M{"payload": string(payload), "updated_at": now},
		"$inc": bson.M{"version": 1},
	}
	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
		return 0, fmt.Errorf("%w: session %s is not at version %d", ErrVersionConflict, id, expected)
	}
	return next, nil
}

func (m *MongoBackend) Delete(ctx context.Context, id string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (m *MongoBackend) DeleteIfVersion(ctx context.Context, id string, expected uint64) error {
	if expected == 0 {
		n, err := m.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check session: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: session %s exists", ErrVersionConflict, id)
		}
		return nil
	}

	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id, "version": int64(expected)})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: session %s is not at version %d", ErrVersionConflict, id, expected)
	}
	return nil
}

// Close disconnects the client the backend was opened with.
func (m *MongoBackend) Close(ctx context.Context) error {
	return m.collection.Database().Client().Disconnect(ctx)
}

// CreateIndexes expires sessions that have not been written for the TTL.
func (m *MongoBackend) CreateIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(int32(m.ttl / time.Second)),
	}
	if _, err := m.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
