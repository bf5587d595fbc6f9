package model

import "time"

// PostType tags what kind of payload a post carries.
type PostType string

const (
	PostTypeText  PostType = "text"
	PostTypeImage PostType = "image"
	PostTypeFile  PostType = "file"
)

// Valid reports whether t is one of the known post types.
func (t PostType) Valid() bool {
	switch t {
	case PostTypeText, PostTypeImage, PostTypeFile:
		return true
	}
	return false
}

// PostFile references an uploaded document attached to a post.
type PostFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Like records that a user liked a post. A user appears at most once in a
// post's likes.
type Like struct {
	User      PublicUser `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Comment is an append-only entry on a post.
type Comment struct {
	User      PublicUser `json:"user"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Share has the same shape as a Like but may repeat.
type Share struct {
	User      PublicUser `json:"user"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Post is an authored entry in the feed.
//
// OWNERSHIP:
// Likes, comments, and shares belong to exactly one post. They have no ID of
// their own; they are addressed by their position in the parent's slice and
// disappear with the post. Repositories only persist the User.ID of each
// entry; the service layer fills in names before the post leaves the API.
//
// Author is serialised as "user" to keep the JSON shape clients already know.
type Post struct {
	ID        string     `json:"id"`
	Author    PublicUser `json:"user"`
	Text      string     `json:"text"`
	PostType  PostType   `json:"postType"`
	Image     string     `json:"image,omitempty"`
	File      *PostFile  `json:"file,omitempty"`
	Likes     []Like     `json:"likes"`
	Comments  []Comment  `json:"comments"`
	Shares    []Share    `json:"shares"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// UserIDs returns every distinct user referenced by the post: author,
// likers, commenters, and sharers.
func (p *Post) UserIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	add(p.Author.ID)
	for _, l := range p.Likes {
		add(l.User.ID)
	}
	for _, c := range p.Comments {
		add(c.User.ID)
	}
	for _, s := range p.Shares {
		add(s.User.ID)
	}
	return ids
}
