// Package mongo implements the repository interfaces on MongoDB.
//
// Posts are stored as single documents with their likes, comments, and
// shares embedded as arrays. Every mutation is one atomic update on one
// document ($push / $pull / $max), so there is no read-modify-write window
// in which a concurrent request could overwrite another's change.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/research-gate/internal/repository"
)

var _ repository.Store = (*Store)(nil)

const (
	usersCollection         = "users"
	postsCollection         = "posts"
	notificationsCollection = "notifications"

	defaultListLimit = 20
	maxListLimit     = 100
)

// Store holds the client and the collections it owns.
type Store struct {
	client        *mongo.Client
	users         *mongo.Collection
	posts         *mongo.Collection
	notifications *mongo.Collection
}

// New connects to uri, verifies the connection, and ensures indexes on the
// named database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:        client,
		users:         db.Collection(usersCollection),
		posts:         db.Collection(postsCollection),
		notifications: db.Collection(notificationsCollection),
	}

	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: creating users.email index: %w", err)
	}

	_, err = s.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: creating posts indexes: %w", err)
	}

	_, err = s.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongo: creating notifications index: %w", err)
	}

	return nil
}

// Ping reports whether the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client, waiting up to five seconds for in-flight
// operations.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
