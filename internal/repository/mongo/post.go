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
	"github.com/sakif/research-gate/internal/repository"
)

// toggleAttempts bounds the push/pull retry loop in ToggleLike. A retry is
// only needed when another request flips the same like between our two
// conditional updates.
const toggleAttempts = 3

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	authorID, ok := objectID(post.Author.ID)
	if !ok {
		return apperror.UserNotFound()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.CreatedAt

	doc := postDoc{
		ID:        primitive.NewObjectID(),
		User:      authorID,
		Text:      post.Text,
		PostType:  string(post.PostType),
		Image:     post.Image,
		Likes:     []likeDoc{},
		Comments:  []commentDoc{},
		Shares:    []likeDoc{},
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	if post.File != nil {
		doc.File = &fileDoc{Name: post.File.Name, URL: post.File.URL}
	}

	if _, err := s.posts.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: creating post: %w", err)
	}

	post.ID = doc.ID.Hex()
	post.Likes = []model.Like{}
	post.Comments = []model.Comment{}
	post.Shares = []model.Share{}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (*model.Post, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, apperror.PostNotFound()
	}

	var doc postDoc
	if err := s.posts.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.PostNotFound()
		}
		return nil, fmt.Errorf("mongo: getting post %s: %w", id, err)
	}

	p := doc.toModel()
	return &p, nil
}

func (s *Store) ListPosts(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	filter := bson.M{}
	if opts.AuthorID != "" {
		authorID, ok := objectID(opts.AuthorID)
		if !ok {
			return []model.Post{}, nil
		}
		filter["user"] = authorID
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := s.posts.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo: listing posts: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []postDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decoding posts: %w", err)
	}

	posts := make([]model.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, d.toModel())
	}
	return posts, nil
}

// ToggleLike flips the like with two conditional single-document updates:
//
//  1. $push the like, but only on a post whose likes do not contain userID
//  2. otherwise $pull it, but only on a post whose likes do contain userID
//
// Each update is atomic, so the likes array can never hold userID twice. If
// neither matches, either the post is gone or a concurrent toggle by the
// same user slipped in between; the loop retries a bounded number of times.
func (s *Store) ToggleLike(ctx context.Context, postID, userID string, at time.Time) (bool, []model.Like, error) {
	pid, ok := objectID(postID)
	if !ok {
		return false, nil, apperror.PostNotFound()
	}
	uid, ok := objectID(userID)
	if !ok {
		return false, nil, apperror.UserNotFound()
	}
	at = at.UTC()
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	for attempt := 0; attempt < toggleAttempts; attempt++ {
		var doc postDoc
		err := s.posts.FindOneAndUpdate(ctx,
			bson.M{"_id": pid, "likes.user": bson.M{"$ne": uid}},
			bson.M{
				"$push": bson.M{"likes": likeDoc{User: uid, CreatedAt: at}},
				"$max":  bson.M{"updatedAt": at},
			},
			after,
		).Decode(&doc)
		if err == nil {
			return true, likesToModel(doc.Likes), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil, fmt.Errorf("mongo: liking post %s: %w", postID, err)
		}

		err = s.posts.FindOneAndUpdate(ctx,
			bson.M{"_id": pid, "likes.user": uid},
			bson.M{
				"$pull": bson.M{"likes": bson.M{"user": uid}},
				"$max":  bson.M{"updatedAt": at},
			},
			after,
		).Decode(&doc)
		if err == nil {
			return false, likesToModel(doc.Likes), nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil, fmt.Errorf("mongo: unliking post %s: %w", postID, err)
		}

		exists, err := s.postExists(ctx, pid)
		if err != nil {
			return false, nil, err
		}
		if !exists {
			return false, nil, apperror.PostNotFound()
		}
	}

	return false, nil, fmt.Errorf("mongo: toggling like on post %s: too much contention", postID)
}

func (s *Store) AddComment(ctx context.Context, postID string, comment model.Comment) ([]model.Comment, error) {
	pid, ok := objectID(postID)
	if !ok {
		return nil, apperror.PostNotFound()
	}
	uid, ok := objectID(comment.User.ID)
	if !ok {
		return nil, apperror.UserNotFound()
	}
	at := comment.CreatedAt.UTC()

	var doc postDoc
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": pid},
		bson.M{
			"$push": bson.M{"comments": commentDoc{User: uid, Text: comment.Text, CreatedAt: at}},
			"$max":  bson.M{"updatedAt": at},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.PostNotFound()
		}
		return nil, fmt.Errorf("mongo: commenting on post %s: %w", postID, err)
	}

	return commentsToModel(doc.Comments), nil
}

func (s *Store) AddShare(ctx context.Context, postID string, share model.Share) ([]model.Share, error) {
	pid, ok := objectID(postID)
	if !ok {
		return nil, apperror.PostNotFound()
	}
	uid, ok := objectID(share.User.ID)
	if !ok {
		return nil, apperror.UserNotFound()
	}
	at := share.CreatedAt.UTC()

	var doc postDoc
	err := s.posts.FindOneAndUpdate(ctx,
		bson.M{"_id": pid},
		bson.M{
			"$push": bson.M{"shares": likeDoc{User: uid, CreatedAt: at}},
			"$max":  bson.M{"updatedAt": at},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.PostNotFound()
		}
		return nil, fmt.Errorf("mongo: sharing post %s: %w", postID, err)
	}

	return sharesToModel(doc.Shares), nil
}

// DeletePost removes the post document, and with it every embedded like,
// comment, and share. Notifications about the post are cleaned up after.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return apperror.PostNotFound()
	}

	res, err := s.posts.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("mongo: deleting post %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.PostNotFound()
	}

	if _, err := s.notifications.DeleteMany(ctx, bson.M{"post": oid}); err != nil {
		return fmt.Errorf("mongo: deleting notifications for post %s: %w", id, err)
	}
	return nil
}

func (s *Store) postExists(ctx context.Context, pid primitive.ObjectID) (bool, error) {
	n, err := s.posts.CountDocuments(ctx, bson.M{"_id": pid}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo: checking post %s: %w", pid.Hex(), err)
	}
	return n > 0, nil
}
