package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// querier is the subset of *sql.DB and *sql.Tx the post queries need, so
// the same loaders run inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const postColumns = `id, user_id, text, post_type, image, file_name, file_url, created_at, updated_at`

func scanPost(row rowScanner) (*model.Post, error) {
	var (
		p        model.Post
		fileName sql.NullString
		fileURL  sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Author.ID, &p.Text, &p.PostType, &p.Image, &fileName, &fileURL,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if fileName.Valid || fileURL.Valid {
		p.File = &model.PostFile{Name: fileName.String, URL: fileURL.String}
	}
	p.Likes = []model.Like{}
	p.Comments = []model.Comment{}
	p.Shares = []model.Share{}
	return &p, nil
}

// CreatePost inserts a post and fills in its ID (and timestamps if the
// caller left them zero).
func (db *DB) CreatePost(ctx context.Context, post *model.Post) error {
	post.ID = xid.New().String()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	post.CreatedAt = utc(post.CreatedAt)
	post.UpdatedAt = post.CreatedAt

	var fileName, fileURL sql.NullString
	if post.File != nil {
		fileName = sql.NullString{String: post.File.Name, Valid: true}
		fileURL = sql.NullString{String: post.File.URL, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO posts (`+postColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.ID,
		post.Author.ID,
		post.Text,
		string(post.PostType),
		post.Image,
		fileName,
		fileURL,
		post.CreatedAt,
		post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating post: %w", err)
	}

	if post.Likes == nil {
		post.Likes = []model.Like{}
	}
	if post.Comments == nil {
		post.Comments = []model.Comment{}
	}
	if post.Shares == nil {
		post.Shares = []model.Share{}
	}
	return nil
}

// GetPost returns a post with all of its sub-records.
// Returns apperror.ErrPostNotFound if it doesn't exist.
func (db *DB) GetPost(ctx context.Context, id string) (*model.Post, error) {
	p, err := scanPost(db.conn.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.PostNotFound()
		}
		return nil, fmt.Errorf("sqlite: getting post %s: %w", id, err)
	}

	if err := loadSubRecords(ctx, db.conn, []*model.Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPosts returns posts newest first, optionally filtered by author.
func (db *DB) ListPosts(ctx context.Context, opts repository.ListOptions) ([]model.Post, error) {
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

	query := `SELECT ` + postColumns + ` FROM posts`
	args := []any{}
	if opts.AuthorID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, opts.AuthorID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing posts: %w", err)
	}

	posts := make([]*model.Post, 0, limit)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating posts: %w", err)
	}
	// The pool has a single connection; the cursor must be released before
	// the sub-record queries can run.
	rows.Close()

	if err := loadSubRecords(ctx, db.conn, posts); err != nil {
		return nil, err
	}

	out := make([]model.Post, len(posts))
	for i, p := range posts {
		out[i] = *p
	}
	return out, nil
}

// ToggleLike flips userID's membership in the post's likes inside a single
// transaction. The DELETE reports whether a like existed; if none did, one
// is inserted. Together with UNIQUE(post_id, user_id) this makes the toggle
// an atomic set-membership operation.
func (db *DB) ToggleLike(ctx context.Context, postID, userID string, at time.Time) (bool, []model.Like, error) {
	var (
		liked bool
		likes []model.Like
	)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchPost(ctx, tx, postID, at); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing like: %w", err)
		}
		removed, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}

		if removed == 0 {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`,
				postID, userID, utc(at),
			)
			if err != nil {
				return fmt.Errorf("sqlite: adding like: %w", err)
			}
			liked = true
		}

		likes, err = loadLikes(ctx, tx, postID)
		return err
	})
	if err != nil {
		return false, nil, err
	}

	return liked, likes, nil
}

// AddComment appends a comment and returns the post's full comment list.
func (db *DB) AddComment(ctx context.Context, postID string, comment model.Comment) ([]model.Comment, error) {
	var comments []model.Comment

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchPost(ctx, tx, postID, comment.CreatedAt); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_comments (post_id, user_id, text, created_at) VALUES (?, ?, ?, ?)`,
			postID, comment.User.ID, comment.Text, utc(comment.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: adding comment: %w", err)
		}

		comments, err = loadComments(ctx, tx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return comments, nil
}

// AddShare appends a share entry. Unlike likes, the same user may share a
// post more than once.
func (db *DB) AddShare(ctx context.Context, postID string, share model.Share) ([]model.Share, error) {
	var shares []model.Share

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchPost(ctx, tx, postID, share.CreatedAt); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_shares (post_id, user_id, created_at) VALUES (?, ?, ?)`,
			postID, share.User.ID, utc(share.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("sqlite: adding share: %w", err)
		}

		shares, err = loadShares(ctx, tx, postID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return shares, nil
}

// DeletePost removes the post. Likes, comments, shares, and notifications
// referencing it go with it through ON DELETE CASCADE, in the same statement.
func (db *DB) DeletePost(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting post %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.PostNotFound()
	}

	return nil
}

// touchPost confirms the post exists and advances its updated_at to at,
// never moving it backwards.
func touchPost(ctx context.Context, q querier, postID string, at time.Time) error {
	var current time.Time
	err := q.QueryRowContext(ctx, `SELECT updated_at FROM posts WHERE id = ?`, postID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperror.PostNotFound()
		}
		return fmt.Errorf("sqlite: reading post %s: %w", postID, err)
	}

	if !at.After(current) {
		return nil
	}
	_, err = q.ExecContext(ctx, `UPDATE posts SET updated_at = ? WHERE id = ?`, utc(at), postID)
	if err != nil {
		return fmt.Errorf("sqlite: touching post %s: %w", postID, err)
	}
	return nil
}

func loadLikes(ctx context.Context, q querier, postID string) ([]model.Like, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, created_at FROM post_likes WHERE post_id = ? ORDER BY seq`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading likes: %w", err)
	}
	defer rows.Close()

	likes := []model.Like{}
	for rows.Next() {
		var l model.Like
		if err := rows.Scan(&l.User.ID, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning like: %w", err)
		}
		likes = append(likes, l)
	}
	return likes, rows.Err()
}

func loadComments(ctx context.Context, q querier, postID string) ([]model.Comment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, text, created_at FROM post_comments WHERE post_id = ? ORDER BY seq`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.User.ID, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func loadShares(ctx context.Context, q querier, postID string) ([]model.Share, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, created_at FROM post_shares WHERE post_id = ? ORDER BY seq`, postID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading shares: %w", err)
	}
	defer rows.Close()

	shares := []model.Share{}
	for rows.Next() {
		var s model.Share
		if err := rows.Scan(&s.User.ID, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning share: %w", err)
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// loadSubRecords fills likes, comments, and shares for a batch of posts
// with one query per table.
func loadSubRecords(ctx context.Context, q querier, posts []*model.Post) error {
	if len(posts) == 0 {
		return nil
	}

	byID := make(map[string]*model.Post, len(posts))
	args := make([]any, len(posts))
	for i, p := range posts {
		byID[p.ID] = p
		args[i] = p.ID
	}
	in := "(" + strings.TrimSuffix(strings.Repeat("?,", len(posts)), ",") + ")"

	err := eachRow(ctx, q,
		`SELECT post_id, user_id, created_at FROM post_likes WHERE post_id IN `+in+` ORDER BY seq`, args,
		func(rows *sql.Rows) error {
			var postID string
			var l model.Like
			if err := rows.Scan(&postID, &l.User.ID, &l.CreatedAt); err != nil {
				return err
			}
			byID[postID].Likes = append(byID[postID].Likes, l)
			return nil
		})
	if err != nil {
		return fmt.Errorf("sqlite: loading likes: %w", err)
	}

	err = eachRow(ctx, q,
		`SELECT post_id, user_id, text, created_at FROM post_comments WHERE post_id IN `+in+` ORDER BY seq`, args,
		func(rows *sql.Rows) error {
			var postID string
			var c model.Comment
			if err := rows.Scan(&postID, &c.User.ID, &c.Text, &c.CreatedAt); err != nil {
				return err
			}
			byID[postID].Comments = append(byID[postID].Comments, c)
			return nil
		})
	if err != nil {
		return fmt.Errorf("sqlite: loading comments: %w", err)
	}

	err = eachRow(ctx, q,
		`SELECT post_id, user_id, created_at FROM post_shares WHERE post_id IN `+in+` ORDER BY seq`, args,
		func(rows *sql.Rows) error {
			var postID string
			var s model.Share
			if err := rows.Scan(&postID, &s.User.ID, &s.CreatedAt); err != nil {
				return err
			}
			byID[postID].Shares = append(byID[postID].Shares, s)
			return nil
		})
	if err != nil {
		return fmt.Errorf("sqlite: loading shares: %w", err)
	}

	return nil
}

func eachRow(ctx context.Context, q querier, query string, args []any, fn func(rows *sql.Rows) error) error {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
