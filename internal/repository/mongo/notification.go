package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
)

func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	recipient, ok := objectID(n.RecipientID)
	if !ok {
		return apperror.UserNotFound()
	}
	sender, ok := objectID(n.SenderID)
	if !ok {
		return apperror.UserNotFound()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	doc := notificationDoc{
		ID:        primitive.NewObjectID(),
		Recipient: recipient,
		Sender:    sender,
		Type:      string(n.Type),
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC(),
	}
	if post, ok := objectID(n.PostID); ok {
		doc.Post = post
	}

	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: creating notification: %w", err)
	}
	n.ID = doc.ID.Hex()
	return nil
}
