package push

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"wayfinder/models"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// apnsPusher is the slice of *apns2.Client the adapter uses.
type apnsPusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// NewAPNsClient builds a token-authenticated (.p8) APNs client.
func NewAPNsClient(keyFile, keyID, teamID string, production bool) (*apns2.Client, error) {
	if keyFile == "" || keyID == "" || teamID == "" {
		return nil, fmt.Errorf("apns: key file, key id and team id are required")
	}
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("apns: failed to load auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

// APNsAdapter delivers to Apple devices.
type APNsAdapter struct {
	client apnsPusher
	topic  string
}

func NewAPNsAdapter(client apnsPusher, topic string) *APNsAdapter {
	return &APNsAdapter{client: client, topic: topic}
}

func (a *APNsAdapter) Channel() models.Channel { return models.ChannelAPNs }

func (a *APNsAdapter) Send(ctx context.Context, endpoint models.Endpoint, p Payload) error {
	deviceToken := endpoint.Credential.Token
	if _, err := hex.DecodeString(deviceToken); err != nil || deviceToken == "" {
		return NewPermanentError(models.ChannelAPNs, models.ReasonProviderRejected, 0,
			errors.New("device token is not a hex string"))
	}

	res, err := a.client.PushWithContext(ctx, buildAPNsNotification(deviceToken, a.topic, p))
	if err != nil {
		return NewTransientError(models.ChannelAPNs, 0, err)
	}
	if res.Sent() {
		return nil
	}

	reasonErr := fmt.Errorf("apns rejected notification: %s", res.Reason)
	switch res.Reason {
	case apns2.ReasonUnregistered:
		return NewPermanentError(models.ChannelAPNs, models.ReasonExpired, res.StatusCode, reasonErr)
	case apns2.ReasonBadDeviceToken, apns2.ReasonDeviceTokenNotForTopic:
		return NewPermanentError(models.ChannelAPNs, models.ReasonProviderRejected, res.StatusCode, reasonErr)
	}
	if res.StatusCode == http.StatusGone {
		return NewPermanentError(models.ChannelAPNs, models.ReasonExpired, res.StatusCode, reasonErr)
	}
	return NewTransientError(models.ChannelAPNs, res.StatusCode, reasonErr)
}

func buildAPNsNotification(deviceToken, topic string, p Payload) *apns2.Notification {
	body := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body).
		Badge(p.Badge).
		Sound("default").
		ThreadID(string(p.Type))
	for k, v := range p.Data {
		body.Custom(k, v)
	}

	priority := apns2.PriorityLow
	if p.Priority == models.PriorityHigh {
		priority = apns2.PriorityHigh
	}
	return &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       topic,
		Payload:     body,
		Priority:    priority,
		PushType:    apns2.PushTypeAlert,
		CollapseID:  collapseID(p.Tag),
	}
}

// collapseID trims the tag to the 64 bytes APNs allows.
func collapseID(tag string) string {
	if len(tag) > 64 {
		return tag[:64]
	}
	return tag
}
