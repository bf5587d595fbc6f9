package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/research-gate/internal/model"
)

// CreateNotification stores a notification and fills in its ID.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	n.ID = xid.New().String()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, sender_id, post_id, type, message, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.RecipientID,
		n.SenderID,
		n.PostID,
		string(n.Type),
		n.Message,
		n.Read,
		utc(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating notification: %w", err)
	}
	return nil
}

