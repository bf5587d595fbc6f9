// Package repository declares the storage contracts used by the service
// layer. internal/repository/sqlite and internal/repository/mongo implement
// all of them on a single type each.
package repository

import (
	"context"
	"time"

	"github.com/sakif/research-gate/internal/model"
)

type ListOptions struct {
	Limit    int
	Offset   int
	AuthorID string // optional: only posts by this user
}

// UserRepository is the credential store. Email is unique: CreateUser fails
// with apperror.ErrDuplicateEmail rather than overwriting.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	SaveUser(ctx context.Context, user *model.User) error
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]model.PublicUser, error)
}

// PostRepository stores posts together with their likes, comments, and
// shares. Sub-records only carry the user ID; names are filled in by the
// service layer.
//
// Every mutation refreshes the post's UpdatedAt to max(current, at).
type PostRepository interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context, opts ListOptions) ([]model.Post, error)

	// ToggleLike removes userID from the likes if present, otherwise appends
	// it. It reports which branch ran and returns the resulting likes.
	ToggleLike(ctx context.Context, postID, userID string, at time.Time) (liked bool, likes []model.Like, err error)
	AddComment(ctx context.Context, postID string, comment model.Comment) ([]model.Comment, error)
	AddShare(ctx context.Context, postID string, share model.Share) ([]model.Share, error)

	// DeletePost removes the post and all of its sub-records in one step.
	DeletePost(ctx context.Context, id string) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Store is a complete storage backend with a lifecycle.
type Store interface {
	UserRepository
	PostRepository
	NotificationRepository
	Ping(ctx context.Context) error
	Close() error
}
