package model

import "time"

// NotificationType says which interaction produced a notification.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
)

// Notification tells a post author that someone interacted with their post.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient"`
	SenderID    string           `json:"sender"`
	PostID      string           `json:"post"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}
