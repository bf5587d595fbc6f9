package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.Store. It copies values in and out so
// a test can't accidentally mutate stored state through a returned pointer.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]model.User
	posts         map[string]model.Post
	order         []string // post IDs in insertion order
	notifications []model.Notification
	nextID        int

	// set to a non-nil error to simulate a database failure
	saveUserErr     error
	notificationErr error
}

var _ repository.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: make(map[string]model.User),
		posts: make(map[string]model.Post),
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeStore) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return apperror.DuplicateEmail()
		}
	}
	u.ID = f.id("user")
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = *u
	return nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperror.UserNotFound()
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.UserNotFound()
	}
	return &u, nil
}

func (f *fakeStore) SaveUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveUserErr != nil {
		return f.saveUserErr
	}
	if _, ok := f.users[u.ID]; !ok {
		return apperror.UserNotFound()
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeStore) GetUsersByIDs(_ context.Context, ids []string) (map[string]model.PublicUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]model.PublicUser)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u.Public()
		}
	}
	return out, nil
}

func clonePost(p model.Post) model.Post {
	p.Likes = append([]model.Like{}, p.Likes...)
	p.Comments = append([]model.Comment{}, p.Comments...)
	p.Shares = append([]model.Share{}, p.Shares...)
	return p
}

func (f *fakeStore) CreatePost(_ context.Context, p *model.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = f.id("post")
	p.UpdatedAt = p.CreatedAt
	p.Likes, p.Comments, p.Shares = []model.Like{}, []model.Comment{}, []model.Share{}
	f.posts[p.ID] = clonePost(*p)
	f.order = append(f.order, p.ID)
	return nil
}

func (f *fakeStore) GetPost(_ context.Context, id string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, apperror.PostNotFound()
	}
	p = clonePost(p)
	return &p, nil
}

func (f *fakeStore) ListPosts(_ context.Context, opts repository.ListOptions) ([]model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var all []model.Post
	for i := len(f.order) - 1; i >= 0; i-- {
		p, ok := f.posts[f.order[i]]
		if !ok {
			continue
		}
		if opts.AuthorID != "" && p.Author.ID != opts.AuthorID {
			continue
		}
		all = append(all, clonePost(p))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if opts.Offset >= len(all) {
		return []model.Post{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (f *fakeStore) ToggleLike(_ context.Context, postID, userID string, at time.Time) (bool, []model.Like, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return false, nil, apperror.PostNotFound()
	}

	liked := !likedBy(p, userID)
	if liked {
		p.Likes = append(p.Likes, model.Like{User: model.PublicUser{ID: userID}, CreatedAt: at})
	} else {
		kept := p.Likes[:0:0]
		for _, l := range p.Likes {
			if l.User.ID != userID {
				kept = append(kept, l)
			}
		}
		p.Likes = kept
	}
	touch(&p, at)
	f.posts[postID] = p
	return liked, append([]model.Like{}, p.Likes...), nil
}

func (f *fakeStore) AddComment(_ context.Context, postID string, c model.Comment) ([]model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return nil, apperror.PostNotFound()
	}
	p.Comments = append(p.Comments, c)
	touch(&p, c.CreatedAt)
	f.posts[postID] = p
	return append([]model.Comment{}, p.Comments...), nil
}

func (f *fakeStore) AddShare(_ context.Context, postID string, s model.Share) ([]model.Share, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[postID]
	if !ok {
		return nil, apperror.PostNotFound()
	}
	p.Shares = append(p.Shares, s)
	touch(&p, s.CreatedAt)
	f.posts[postID] = p
	return append([]model.Share{}, p.Shares...), nil
}

func (f *fakeStore) DeletePost(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return apperror.PostNotFound()
	}
	delete(f.posts, id)
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notificationErr != nil {
		return f.notificationErr
	}
	n.ID = f.id("notification")
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// fakeNotifier records every code it is asked to deliver.
type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	codes map[string][]string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{codes: make(map[string][]string)}
}

func (n *fakeNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[email] = append(n.codes[email], code)
	return n.err
}

// clock is a settable time source shared by a test and the services.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errDatabaseDown = errors.New("database is down")

func likedBy(p model.Post, userID string) bool {
	for _, l := range p.Likes {
		if l.User.ID == userID {
			return true
		}
	}
	return false
}

// touch advances UpdatedAt the way the real stores do: never backwards.
func touch(p *model.Post, at time.Time) {
	if at.After(p.UpdatedAt) {
		p.UpdatedAt = at
	}
}
