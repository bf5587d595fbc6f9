package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/auth"
	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/service"
)

// FeedService is the part of service.PostService the post routes use.
type FeedService interface {
	CreatePost(ctx context.Context, authorID string, in service.NewPost) (*model.Post, error)
	ListPosts(ctx context.Context, limit, offset int) ([]model.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]model.Post, error)
	ToggleLike(ctx context.Context, postID, userID string) (*service.LikeResult, error)
	AddComment(ctx context.Context, postID, userID, text string) ([]model.Comment, error)
	SharePost(ctx context.Context, postID, userID string) ([]model.Share, error)
	DeletePost(ctx context.Context, postID, requesterID string) error
}

// PostHandler serves /api/posts. Every route except the feed itself runs
// behind auth.RequireAuth and reads the caller from the request context.
type PostHandler struct {
	posts  FeedService
	logger *slog.Logger
}

func NewPostHandler(posts FeedService, logger *slog.Logger) *PostHandler {
	return &PostHandler{posts: posts, logger: logger}
}

type CreatePostRequest struct {
	Text     string          `json:"text"     validate:"max=10000"`
	PostType string          `json:"postType" validate:"max=16"`
	Image    string          `json:"image"    validate:"max=2048"`
	File     *model.PostFile `json:"file"`
}

type PostResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Post    *model.Post `json:"post"`
}

type LikeResponse struct {
	Success bool         `json:"success"`
	Liked   bool         `json:"liked"`
	Likes   []model.Like `json:"likes"`
	Message string       `json:"message"`
}

type CommentRequest struct {
	Text string `json:"text" validate:"max=5000"`
}

type CommentResponse struct {
	Success  bool            `json:"success"`
	Comments []model.Comment `json:"comments"`
	Message  string          `json:"message"`
}

type ShareResponse struct {
	Success bool          `json:"success"`
	Shares  []model.Share `json:"shares"`
	Message string        `json:"message"`
}

// caller returns the authenticated user's ID. RequireAuth guarantees it is
// set; the 401 only fires if a route was mounted without the middleware.
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, apperror.AuthenticationRequired())
		return "", false
	}
	return id, true
}

// HandleCreate creates a post authored by the caller.
//
// HTTP: POST /api/posts
// REQUEST BODY: {"text": "...", "postType": "text|image|file", "image": "/uploads/..", "file": {"name": "..", "url": ".."}}
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	post, err := h.posts.CreatePost(r.Context(), userID, service.NewPost{
		Text:     req.Text,
		PostType: model.PostType(req.PostType),
		Image:    req.Image,
		File:     req.File,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PostResponse{
		Success: true,
		Message: "Post created successfully",
		Post:    post,
	})
}

// HandleList returns the feed, newest first.
//
// HTTP: GET /api/posts?limit=20&offset=0
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		WriteError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		WriteError(w, err)
		return
	}

	posts, err := h.posts.ListPosts(r.Context(), limit, offset)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleMyPosts returns the caller's own posts.
//
// HTTP: GET /api/posts/my-posts
func (h *PostHandler) HandleMyPosts(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	posts, err := h.posts.ListPostsByAuthor(r.Context(), userID)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleLike toggles the caller's like.
//
// HTTP: POST /api/posts/{id}/like
func (h *PostHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	res, err := h.posts.ToggleLike(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	msg := "Post unliked"
	if res.Liked {
		msg = "Post liked"
	}
	writeJSON(w, http.StatusOK, LikeResponse{Success: true, Liked: res.Liked, Likes: res.Likes, Message: msg})
}

// HandleComment appends a comment.
//
// HTTP: POST /api/posts/{id}/comment
// REQUEST BODY: {"text": "..."}
func (h *PostHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var req CommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	comments, err := h.posts.AddComment(r.Context(), chi.URLParam(r, "id"), userID, req.Text)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CommentResponse{Success: true, Comments: comments, Message: "Comment added successfully"})
}

// HandleShare records a share.
//
// HTTP: POST /api/posts/{id}/share
func (h *PostHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	shares, err := h.posts.SharePost(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ShareResponse{Success: true, Shares: shares, Message: "Post shared successfully"})
}

// HandleDelete deletes one of the caller's posts.
//
// HTTP: DELETE /api/posts/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	if err := h.posts.DeletePost(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Post deleted successfully"})
}

// queryInt parses an optional non-negative integer query parameter; absent
// means 0, which the service turns into its default.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
