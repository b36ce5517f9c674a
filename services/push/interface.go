package push

import (
	"context"
	"time"

	"wayfinder/models"

	"golang.org/x/time/rate"
)

// Adapter delivers one payload to one endpoint of its channel. Adapters own
// their wire format and credential validation; errors should be
// *ProviderError so the engine can tell transient from permanent failures.
type Adapter interface {
	Channel() models.Channel
	Send(ctx context.Context, endpoint models.Endpoint, payload Payload) error
}

// Payload carries the fields common to every channel.
type Payload struct {
	NotificationID string
	Type           models.NotificationType
	Title          string
	Body           string
	Data           map[string]string
	Badge          int
	Priority       models.Priority
	// Tag collapses repeated notifications about the same subject.
	Tag       string
	CreatedAt time.Time
}

// NewPayload maps a notification onto the common payload. badge is the
// recipient's unread count after the notification was stored.
func NewPayload(n *models.Notification, badge int64) Payload {
	data := make(map[string]string, len(n.Data)+4)
	for k, v := range n.Data {
		data[k] = v
	}
	data["notificationId"] = n.ID
	data["type"] = string(n.Type)
	if n.RelatedTo != nil {
		data["relatedKind"] = n.RelatedTo.Kind
		data["relatedId"] = n.RelatedTo.ID
	}
	if n.ActionBy != "" {
		data["actionBy"] = n.ActionBy
	}

	tag := string(n.Type)
	if n.RelatedTo != nil {
		tag += ":" + n.RelatedTo.Kind + ":" + n.RelatedTo.ID
	}

	return Payload{
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Message,
		Data:           data,
		Badge:          int(badge),
		Priority:       n.Priority,
		Tag:            tag,
		CreatedAt:      n.CreatedAt,
	}
}

type limitedAdapter struct {
	Adapter
	limiter *rate.Limiter
}

// WithRateLimit caps the send rate of an adapter to perSec with the given
// burst. Waiting past the send deadline surfaces as a transient failure.
func WithRateLimit(a Adapter, perSec float64, burst int) Adapter {
	if perSec <= 0 {
		return a
	}
	if burst <= 0 {
		burst = 1
	}
	return &limitedAdapter{Adapter: a, limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (l *limitedAdapter) Send(ctx context.Context, endpoint models.Endpoint, payload Payload) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return NewTransientError(l.Channel(), 0, err)
	}
	return l.Adapter.Send(ctx, endpoint, payload)
}
