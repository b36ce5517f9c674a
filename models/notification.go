package models

import "time"

// NotificationType is the closed set of events the core knows how to deliver.
type NotificationType string

const (
	NotificationFollow                NotificationType = "follow"
	NotificationLike                  NotificationType = "like"
	NotificationComment               NotificationType = "comment"
	NotificationMention               NotificationType = "mention"
	NotificationReminder              NotificationType = "reminder"
	NotificationEventUpdate           NotificationType = "event_update"
	NotificationJourneyInvite         NotificationType = "journey_invite"
	NotificationJourneyInviteAccepted NotificationType = "journey_invite_accepted"
	NotificationJourneyInviteDeclined NotificationType = "journey_invite_declined"
	NotificationSystem                NotificationType = "system"
)

var notificationTypes = map[NotificationType]struct{}{
	NotificationFollow:                {},
	NotificationLike:                  {},
	NotificationComment:               {},
	NotificationMention:               {},
	NotificationReminder:              {},
	NotificationEventUpdate:           {},
	NotificationJourneyInvite:         {},
	NotificationJourneyInviteAccepted: {},
	NotificationJourneyInviteDeclined: {},
	NotificationSystem:                {},
}

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityHigh
}

// EntityRef points at the subject of a notification, e.g. post/123.
type EntityRef struct {
	Kind string `bson:"kind" json:"kind"`
	ID   string `bson:"id" json:"id"`
}

// Notification is the durable record every delivery channel derives from.
type Notification struct {
	ID          string            `bson:"id" json:"id"`
	RecipientID string            `bson:"recipientId" json:"recipientId"`
	Type        NotificationType  `bson:"type" json:"type"`
	Title       string            `bson:"title" json:"title"`
	Message     string            `bson:"message" json:"message"`
	RelatedTo   *EntityRef        `bson:"relatedTo,omitempty" json:"relatedTo,omitempty"`
	ActionBy    string            `bson:"actionBy,omitempty" json:"actionBy,omitempty"`
	Priority    Priority          `bson:"priority" json:"priority"`
	Data        map[string]string `bson:"data,omitempty" json:"data,omitempty"`
	Read        bool              `bson:"read" json:"read"`
	ReadAt      *time.Time        `bson:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt   time.Time         `bson:"createdAt" json:"createdAt"`
	Seq         int64             `bson:"seq" json:"-"`
}

// CreateNotificationInput is what the business logic hands to the core once it
// has decided a user should be notified.
type CreateNotificationInput struct {
	RecipientID string            `json:"recipientId" binding:"required"`
	Type        NotificationType  `json:"type" binding:"required,notiftype"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	RelatedTo   *EntityRef        `json:"relatedTo,omitempty"`
	ActionBy    string            `json:"actionBy,omitempty"`
	Priority    Priority          `json:"priority,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
}

// NotificationCursor marks a position in a recipient's newest-first feed.
type NotificationCursor struct {
	CreatedAt time.Time
	Seq       int64
}

// NotificationQuery selects a window of a recipient's notifications.
// Since is an exclusive lower bound on createdAt, Before an exclusive
// upper bound on (createdAt, seq).
type NotificationQuery struct {
	Since  *time.Time
	Before *NotificationCursor
	Limit  int
}

// NotificationPage is one snapshot of a recipient's feed.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	HasMore       bool           `json:"hasMore"`
	NextCursor    string         `json:"nextCursor,omitempty"`
}
