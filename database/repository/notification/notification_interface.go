package notificationRepo

import (
	"context"
	"time"

	"wayfinder/models"
)

// NotificationRepository persists notification records.
// Implementations return models.ErrNotFound when a record is missing or is
// owned by a different recipient.
type NotificationRepository interface {
	// Insert stores n, filling ID, CreatedAt and Seq when unset.
	Insert(ctx context.Context, n *models.Notification) error
	// GetByID fetches one notification scoped to its recipient.
	GetByID(ctx context.Context, recipientID, id string) (*models.Notification, error)
	// List returns up to q.Limit notifications ordered createdAt desc, seq desc.
	List(ctx context.Context, recipientID string, q models.NotificationQuery) ([]models.Notification, error)
	// MarkRead flips read to true; already-read records are left untouched.
	MarkRead(ctx context.Context, recipientID, id string, at time.Time) error
	// MarkAllRead flips every unread record of the recipient and returns how many changed.
	MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	// CountUnread counts unread records of the recipient.
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}

// stamp fills the generated fields of a new record. Timestamps are kept at
// millisecond precision, the resolution of BSON dates.
func stamp(n *models.Notification, newID func() string, seq int64) {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	n.CreatedAt = n.CreatedAt.Truncate(time.Millisecond)
	n.Seq = seq
}
