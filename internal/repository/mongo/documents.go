package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/research-gate/internal/model"
)

// BSON shapes. They mirror the model types but use ObjectIDs for references
// and keep the model package free of storage tags.

type userDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	Password         string             `bson:"password"`
	IsVerified       bool               `bson:"isVerified"`
	VerificationCode string             `bson:"verificationCode,omitempty"`
	CodeExpires      *time.Time         `bson:"codeExpires,omitempty"`
	Bio              string             `bson:"bio"`
	ProfilePic       string             `bson:"profilePic"`
	CoverPhoto       string             `bson:"coverPhoto"`
	DateOfBirth      *time.Time         `bson:"dob,omitempty"`
	Gender           string             `bson:"gender"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

type fileDoc struct {
	Name string `bson:"name"`
	URL  string `bson:"url"`
}

type likeDoc struct {
	User      primitive.ObjectID `bson:"user"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type commentDoc struct {
	User      primitive.ObjectID `bson:"user"`
	Text      string             `bson:"text"`
	CreatedAt time.Time          `bson:"createdAt"`
}

type postDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	User      primitive.ObjectID `bson:"user"`
	Text      string             `bson:"text"`
	PostType  string             `bson:"postType"`
	Image     string             `bson:"image,omitempty"`
	File      *fileDoc           `bson:"file,omitempty"`
	Likes     []likeDoc          `bson:"likes"`
	Comments  []commentDoc       `bson:"comments"`
	Shares    []likeDoc          `bson:"shares"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

type notificationDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Recipient primitive.ObjectID `bson:"recipient"`
	Sender    primitive.ObjectID `bson:"sender"`
	Post      primitive.ObjectID `bson:"post,omitempty"`
	Type      string             `bson:"type"`
	Message   string             `bson:"message"`
	Read      bool               `bson:"read"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// objectID parses a hex ID. Anything that is not a valid ObjectID cannot
// name a stored document, so callers treat !ok as "not found".
func objectID(hex string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(hex)
	return id, err == nil
}

func userToDoc(u *model.User) userDoc {
	d := userDoc{
		Name:             u.Name,
		Email:            u.Email,
		Password:         u.PasswordHash,
		IsVerified:       u.IsVerified,
		VerificationCode: u.VerificationCode,
		CodeExpires:      u.CodeExpires,
		Bio:              u.Bio,
		ProfilePic:       u.ProfilePic,
		CoverPhoto:       u.CoverPhoto,
		DateOfBirth:      u.DateOfBirth,
		Gender:           u.Gender,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
	if id, ok := objectID(u.ID); ok {
		d.ID = id
	}
	return d
}

func (d userDoc) toModel() *model.User {
	return &model.User{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Email:            d.Email,
		PasswordHash:     d.Password,
		IsVerified:       d.IsVerified,
		VerificationCode: d.VerificationCode,
		CodeExpires:      d.CodeExpires,
		Bio:              d.Bio,
		ProfilePic:       d.ProfilePic,
		CoverPhoto:       d.CoverPhoto,
		DateOfBirth:      d.DateOfBirth,
		Gender:           d.Gender,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (d postDoc) toModel() model.Post {
	p := model.Post{
		ID:        d.ID.Hex(),
		Author:    model.PublicUser{ID: d.User.Hex()},
		Text:      d.Text,
		PostType:  model.PostType(d.PostType),
		Image:     d.Image,
		Likes:     likesToModel(d.Likes),
		Comments:  commentsToModel(d.Comments),
		Shares:    sharesToModel(d.Shares),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.File != nil {
		p.File = &model.PostFile{Name: d.File.Name, URL: d.File.URL}
	}
	return p
}

func likesToModel(docs []likeDoc) []model.Like {
	likes := make([]model.Like, 0, len(docs))
	for _, l := range docs {
		likes = append(likes, model.Like{User: model.PublicUser{ID: l.User.Hex()}, CreatedAt: l.CreatedAt})
	}
	return likes
}

func sharesToModel(docs []likeDoc) []model.Share {
	shares := make([]model.Share, 0, len(docs))
	for _, s := range docs {
		shares = append(shares, model.Share{User: model.PublicUser{ID: s.User.Hex()}, CreatedAt: s.CreatedAt})
	}
	return shares
}

func commentsToModel(docs []commentDoc) []model.Comment {
	comments := make([]model.Comment, 0, len(docs))
	for _, c := range docs {
		comments = append(comments, model.Comment{User: model.PublicUser{ID: c.User.Hex()}, Text: c.Text, CreatedAt: c.CreatedAt})
	}
	return comments
}
