package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is bumped when an existing event's payload changes shape.
// New event types do not bump it; clients ignore types they don't know.
const EnvelopeVersion = 1

type EventType string

const (
	EventNotificationCreated EventType = "NOTIFICATION_CREATED"
	EventNotificationRead    EventType = "NOTIFICATION_READ"
	EventConnectionReady     EventType = "CONNECTION_READY"
	EventPong                EventType = "PONG"

	// inbound
	EventAuth EventType = "AUTH"
	EventPing EventType = "PING"
)

// Envelope is every real-time frame on the wire.
type Envelope struct {
	Type      EventType       `json:"type"`
	Version   int             `json:"version"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope stamps payload with a fresh message id for client-side dedup.
func NewEnvelope(t EventType, payload any) (Envelope, error) {
	env := Envelope{
		Type:      t,
		Version:   EnvelopeVersion,
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = b
	}
	return env, nil
}

// InboundFrame is what clients send; Token is only read on AUTH.
type InboundFrame struct {
	Type  EventType `json:"type"`
	Token string    `json:"token,omitempty"`
}

type NotificationCreatedEvent struct {
	Notification Notification `json:"notification"`
	UnreadCount  int64        `json:"unreadCount"`
}

// NotificationReadEvent tells a user's other devices to reconcile read state.
// NotificationID is empty when everything was marked read.
type NotificationReadEvent struct {
	NotificationID string `json:"notificationId,omitempty"`
	All            bool   `json:"all,omitempty"`
	UnreadCount    int64  `json:"unreadCount"`
}

type ConnectionReadyEvent struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}
