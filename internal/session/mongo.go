package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
)

// ConnectMongoDB establishes a connection and returns the database handle
func ConnectMongoDB(ctx context.Context, uri, dbName string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client.Database(dbName), nil
}

type mongoSession struct {
	State     domain.FlowState `bson:",inline"`
	ExpiresAt time.Time        `bson:"expires_at"`
}

type MongoStore struct {
	collection *mongo.Collection
	ttl        time.Duration
}

func NewMongoStore(db *mongo.Database, collection string, ttl time.Duration) *MongoStore {
	return &MongoStore{
		collection: db.Collection(collection),
		ttl:        ttl,
	}
}

// EnsureIndexes creates the TTL index that lets MongoDB drop expired sessions
func (m *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return fmt.Errorf("failed to create session ttl index: %w", err)
	}
	return nil
}

func (m *MongoStore) Load(ctx context.Context, sessionID string) (*domain.FlowState, error) {
	// the TTL monitor runs about once a minute, so filter expired documents too
	filter := bson.M{"_id": sessionID, "expires_at": bson.M{"$gt": time.Now()}}

	var doc mongoSession
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &doc.State, nil
}

func (m *MongoStore) Save(ctx context.Context, state *domain.FlowState) error {
	doc := mongoSession{State: *state, ExpiresAt: time.Now().Add(m.ttl)}
	filter := bson.M{"_id": state.SessionID}
	opts := options.Replace().SetUpsert(true)

	if _, err := m.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (m *MongoStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := m.collection.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
