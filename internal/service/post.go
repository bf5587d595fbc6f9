// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes SQLite or MongoDB
//
// Services take repository interfaces, never a concrete store, so the same
// PostService runs on either backend and on the in-memory fakes in the tests.
// They return apperror kinds; the handler decides which HTTP status a kind
// becomes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/metrics"
	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/repository"
)

// Pagination bounds for the feed.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Interaction names used for logging and the post_interactions metric.
const (
	actionCreate  = "create"
	actionLike    = "like"
	actionUnlike  = "unlike"
	actionComment = "comment"
	actionShare   = "share"
	actionDelete  = "delete"
)

// NewPost is the client-supplied part of a post.
type NewPost struct {
	Text     string
	PostType model.PostType
	Image    string
	File     *model.PostFile
}

// LikeResult reports which way a toggle went and the likes afterwards.
type LikeResult struct {
	Liked bool
	Likes []model.Like
}

// PostOptions carries optional collaborators of a PostService.
type PostOptions struct {
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// PostService handles posts and the interactions on them.
type PostService struct {
	posts         repository.PostRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

func NewPostService(
	posts repository.PostRepository,
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	logger *slog.Logger,
	opts PostOptions,
) *PostService {
	s := &PostService{
		posts:         posts,
		users:         users,
		notifications: notifications,
		metrics:       opts.Metrics,
		logger:        logger,
		now:           opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CreatePost stores a new post by authorID.
//
// An empty type means text. Only the payload matching the type is kept: an
// image URL on a text post is dropped, as is a file on an image post. The
// text is kept for every type and may be empty.
func (s *PostService) CreatePost(ctx context.Context, authorID string, in NewPost) (*model.Post, error) {
	postType := in.PostType
	if postType == "" {
		postType = model.PostTypeText
	}
	if !postType.Valid() {
		return nil, apperror.InvalidPostType(string(postType))
	}

	post := &model.Post{
		Author:    model.PublicUser{ID: authorID},
		Text:      in.Text,
		PostType:  postType,
		CreatedAt: s.now(),
	}
	switch postType {
	case model.PostTypeImage:
		post.Image = strings.TrimSpace(in.Image)
	case model.PostTypeFile:
		if in.File != nil {
			f := *in.File
			post.File = &f
		}
	}

	if err := s.posts.CreatePost(ctx, post); err != nil {
		s.logger.Error("failed to create post",
			slog.String("author_id", authorID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating post: %w", err)
	}

	if err := s.populate(ctx, []model.Post{*post}, func(i int, p model.Post) { *post = p }); err != nil {
		return nil, err
	}

	s.interaction(actionCreate, post.ID, authorID)
	return post, nil
}

// ListPosts returns the feed, newest first.
func (s *PostService) ListPosts(ctx context.Context, limit, offset int) ([]model.Post, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	return s.list(ctx, repository.ListOptions{Limit: limit, Offset: offset})
}

// ListPostsByAuthor returns up to MaxListLimit of authorID's posts, newest
// first.
func (s *PostService) ListPostsByAuthor(ctx context.Context, authorID string) ([]model.Post, error) {
	return s.list(ctx, repository.ListOptions{Limit: MaxListLimit, AuthorID: authorID})
}

func (s *PostService) list(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
	posts, err := s.posts.ListPosts(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	if err := s.populate(ctx, posts, func(i int, p model.Post) { posts[i] = p }); err != nil {
		return nil, err
	}
	return posts, nil
}

// ToggleLike likes the post if userID has not liked it yet, and unlikes it
// otherwise. Calling it twice leaves the likes as they were.
//
// The membership test and the write happen in one repository call, so a
// user can never appear twice in the likes even under concurrent requests.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID string) (*LikeResult, error) {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	liked, likes, err := s.posts.ToggleLike(ctx, postID, userID, s.now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("toggling like: %w", err)
	}

	if err := s.populateLikes(ctx, likes); err != nil {
		return nil, err
	}

	if liked {
		s.interaction(actionLike, postID, userID)
		s.notify(ctx, post, userID, model.NotificationLike)
	} else {
		s.interaction(actionUnlike, postID, userID)
	}

	return &LikeResult{Liked: liked, Likes: likes}, nil
}

// AddComment appends a comment and returns every comment on the post.
//
// Empty text is rejected before the post is looked up, so a blank comment
// on a missing post reports ErrEmptyComment.
func (s *PostService) AddComment(ctx context.Context, postID, userID, text string) ([]model.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperror.EmptyComment()
	}

	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comments, err := s.posts.AddComment(ctx, postID, model.Comment{
		User:      model.PublicUser{ID: userID},
		Text:      text,
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("adding comment: %w", err)
	}

	if err := s.populateComments(ctx, comments); err != nil {
		return nil, err
	}

	s.interaction(actionComment, postID, userID)
	s.notify(ctx, post, userID, model.NotificationComment)
	return comments, nil
}

// SharePost records a share. Unlike a like, sharing twice counts twice.
func (s *PostService) SharePost(ctx context.Context, postID, userID string) ([]model.Share, error) {
	shares, err := s.posts.AddShare(ctx, postID, model.Share{
		User:      model.PublicUser{ID: userID},
		CreatedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("sharing post: %w", err)
	}

	if err := s.populateShares(ctx, shares); err != nil {
		return nil, err
	}

	s.interaction(actionShare, postID, userID)
	return shares, nil
}

// DeletePost removes a post. Only its author may do that.
func (s *PostService) DeletePost(ctx context.Context, postID, requesterID string) error {
	post, err := s.posts.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post.Author.ID != requesterID {
		s.logger.Warn("refused to delete another user's post",
			slog.String("post_id", postID),
			slog.String("requester_id", requesterID),
		)
		return apperror.Forbidden("Not authorized to delete this post")
	}

	if err := s.posts.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting post: %w", err)
	}

	s.interaction(actionDelete, postID, requesterID)
	return nil
}

func (s *PostService) interaction(action, postID, userID string) {
	s.metrics.PostInteraction(action)
	s.logger.Info("post "+action,
		slog.String("post_id", postID),
		slog.String("user_id", userID),
	)
}

// notify records a notification for the post's author. Interacting with
// your own post notifies nobody. A failure here never fails the interaction.
func (s *PostService) notify(ctx context.Context, post *model.Post, senderID string, kind model.NotificationType) {
	if post.Author.ID == senderID {
		return
	}

	name := "Someone"
	if users, err := s.users.GetUsersByIDs(ctx, []string{senderID}); err == nil {
		if u, ok := users[senderID]; ok && u.Name != "" {
			name = u.Name
		}
	}

	verb := "liked"
	if kind == model.NotificationComment {
		verb = "commented on"
	}

	n := &model.Notification{
		RecipientID: post.Author.ID,
		SenderID:    senderID,
		PostID:      post.ID,
		Type:        kind,
		Message:     fmt.Sprintf("%s %s your post", name, verb),
		CreatedAt:   s.now(),
	}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("failed to store notification",
			slog.String("post_id", post.ID),
			slog.String("type", string(kind)),
			slog.String("error", err.Error()),
		)
	}
}

// populate fills in names for every user a batch of posts references, with
// one user lookup for the whole batch. set receives each finished post.
// Authors keep their email; likers, commenters, and sharers only get a name.
func (s *PostService) populate(ctx context.Context, posts []model.Post, set func(int, model.Post)) error {
	var ids []string
	for i := range posts {
		ids = append(ids, posts[i].UserIDs()...)
	}
	if len(ids) == 0 {
		return nil
	}

	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading post users: %w", err)
	}

	for i, p := range posts {
		if u, ok := users[p.Author.ID]; ok {
			p.Author = u
		}
		for j := range p.Likes {
			p.Likes[j].User = nameOnly(users, p.Likes[j].User)
		}
		for j := range p.Comments {
			p.Comments[j].User = nameOnly(users, p.Comments[j].User)
		}
		for j := range p.Shares {
			p.Shares[j].User = nameOnly(users, p.Shares[j].User)
		}
		set(i, p)
	}
	return nil
}

func nameOnly(users map[string]model.PublicUser, u model.PublicUser) model.PublicUser {
	if full, ok := users[u.ID]; ok {
		return model.PublicUser{ID: full.ID, Name: full.Name}
	}
	return u
}

func (s *PostService) populateLikes(ctx context.Context, likes []model.Like) error {
	ids := make([]string, len(likes))
	for i, l := range likes {
		ids[i] = l.User.ID
	}
	users, err := s.lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range likes {
		likes[i].User = nameOnly(users, likes[i].User)
	}
	return nil
}

func (s *PostService) populateComments(ctx context.Context, comments []model.Comment) error {
	ids := make([]string, len(comments))
	for i, c := range comments {
		ids[i] = c.User.ID
	}
	users, err := s.lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range comments {
		comments[i].User = nameOnly(users, comments[i].User)
	}
	return nil
}

func (s *PostService) populateShares(ctx context.Context, shares []model.Share) error {
	ids := make([]string, len(shares))
	for i, sh := range shares {
		ids[i] = sh.User.ID
	}
	users, err := s.lookup(ctx, ids)
	if err != nil {
		return err
	}
	for i := range shares {
		shares[i].User = nameOnly(users, shares[i].User)
	}
	return nil
}

func (s *PostService) lookup(ctx context.Context, ids []string) (map[string]model.PublicUser, error) {
	if len(ids) == 0 {
		return map[string]model.PublicUser{}, nil
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	return users, nil
}
