package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
)

// CreateUser inserts a user. The unique index on email turns a second
// registration for the same address into apperror.ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	doc := userToDoc(user)
	doc.ID = primitive.NewObjectID()

	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.DuplicateEmail()
		}
		return fmt.Errorf("mongo: creating user %s: %w", user.Email, err)
	}

	user.ID = doc.ID.Hex()
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, apperror.UserNotFound()
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.UserNotFound()
		}
		return nil, fmt.Errorf("mongo: finding user: %w", err)
	}
	return doc.toModel(), nil
}

// SaveUser replaces the stored document with the user's current state.
// Fields that are now empty (a cleared verification code) disappear from
// the document through omitempty.
func (s *Store) SaveUser(ctx context.Context, user *model.User) error {
	oid, ok := objectID(user.ID)
	if !ok {
		return apperror.UserNotFound()
	}
	user.UpdatedAt = time.Now().UTC()

	doc := userToDoc(user)
	res, err := s.users.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return fmt.Errorf("mongo: saving user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.UserNotFound()
	}
	return nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]model.PublicUser, error) {
	users := make(map[string]model.PublicUser, len(ids))

	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, ok := objectID(id); ok {
			oids = append(oids, oid)
		}
	}
	if len(oids) == 0 {
		return users, nil
	}

	cursor, err := s.users.Find(ctx,
		bson.M{"_id": bson.M{"$in": oids}},
		options.Find().SetProjection(bson.M{"name": 1, "email": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongo: loading users: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc userDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decoding user: %w", err)
		}
		users[doc.ID.Hex()] = model.PublicUser{ID: doc.ID.Hex(), Name: doc.Name, Email: doc.Email}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterating users: %w", err)
	}

	return users, nil
}
