package models

import "time"

type DeliveryStatus string

const (
	StatusDelivered        DeliveryStatus = "delivered"
	StatusTransientFailure DeliveryStatus = "transient_failure"
	StatusPermanentFailure DeliveryStatus = "permanent_failure"
	// StatusUnavailable means no adapter is configured for the endpoint's channel.
	StatusUnavailable DeliveryStatus = "unavailable"
)

// EndpointResult is the outcome of one provider send.
type EndpointResult struct {
	EndpointID string         `json:"endpointId"`
	Channel    Channel        `json:"channel"`
	Status     DeliveryStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
}

// DispatchReport summarises one push dispatch across all endpoints.
type DispatchReport struct {
	Attempted   int              `json:"attempted"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Deactivated int              `json:"deactivated"`
	Results     []EndpointResult `json:"results,omitempty"`
}

// TransientEndpointIDs lists endpoints worth retrying.
func (r DispatchReport) TransientEndpointIDs() []string {
	var ids []string
	for _, res := range r.Results {
		if res.Status == StatusTransientFailure {
			ids = append(ids, res.EndpointID)
		}
	}
	return ids
}

// BroadcastReport summarises one real-time fan-out.
type BroadcastReport struct {
	Connections int `json:"connections"`
	Delivered   int `json:"delivered"`
}

// DeliveryResult is returned by the coordinator so callers can log delivery
// health without depending on it.
type DeliveryResult struct {
	NotificationID string          `json:"notificationId"`
	Notification   Notification    `json:"notification"`
	UnreadCount    int64           `json:"unreadCount"`
	Push           DispatchReport  `json:"push"`
	PushError      string          `json:"pushError,omitempty"`
	Broadcast      BroadcastReport `json:"broadcast"`
	RetryScheduled bool            `json:"retryScheduled"`
}

// PushRetryPayload is the body of a push:retry task.
type PushRetryPayload struct {
	NotificationID string   `json:"notificationId"`
	RecipientID    string   `json:"recipientId"`
	EndpointIDs    []string `json:"endpointIds"`
	Attempt        int      `json:"attempt"`
}

// ReminderPayload is the body of a reminder:send task.
type ReminderPayload struct {
	ReminderID  string            `json:"reminderId"`
	RecipientID string            `json:"recipientId"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	RelatedTo   *EntityRef        `json:"relatedTo,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	FireAt      time.Time         `json:"fireAt"`
}

// ScheduleReminderRequest is the body of POST /internal/reminders.
type ScheduleReminderRequest struct {
	RecipientID string            `json:"recipientId" binding:"required"`
	Title       string            `json:"title" binding:"required"`
	Body        string            `json:"body"`
	RelatedTo   *EntityRef        `json:"relatedTo,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	FireAt      time.Time         `json:"fireAt" binding:"required"`
}
