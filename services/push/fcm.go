package push

import (
	"context"
	"errors"

	"wayfinder/models"

	"firebase.google.com/go/v4/messaging"
)

// fcmSender is the slice of *messaging.Client the adapter uses.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMAdapter delivers through Firebase Cloud Messaging.
type FCMAdapter struct {
	client fcmSender
}

func NewFCMAdapter(client fcmSender) *FCMAdapter {
	return &FCMAdapter{client: client}
}

func (a *FCMAdapter) Channel() models.Channel { return models.ChannelFCM }

func (a *FCMAdapter) Send(ctx context.Context, endpoint models.Endpoint, payload Payload) error {
	token := endpoint.Credential.Token
	if token == "" {
		return NewPermanentError(models.ChannelFCM, models.ReasonProviderRejected, 0, errors.New("empty registration token"))
	}

	_, err := a.client.Send(ctx, buildFCMMessage(token, payload))
	if err == nil {
		return nil
	}
	switch {
	case messaging.IsUnregistered(err):
		return NewPermanentError(models.ChannelFCM, models.ReasonExpired, 404, err)
	case messaging.IsSenderIDMismatch(err):
		return NewPermanentError(models.ChannelFCM, models.ReasonProviderRejected, 403, err)
	}
	return NewTransientError(models.ChannelFCM, 0, err)
}

func buildFCMMessage(token string, payload Payload) *messaging.Message {
	badge := payload.Badge
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			Priority:    "normal",
			CollapseKey: payload.Tag,
			Notification: &messaging.AndroidNotification{
				Tag:   payload.Tag,
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":  "5",
				"apns-push-type": "alert",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
					Badge: &badge,
				},
			},
		},
	}
	if payload.Priority == models.PriorityHigh {
		msg.Android.Priority = "high"
		msg.Android.Notification.ChannelID = "high_priority"
		msg.APNS.Headers["apns-priority"] = "10"
	}
	return msg
}
