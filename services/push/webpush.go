package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"wayfinder/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// webPushTTL is how long the push service holds an undelivered message.
const webPushTTL = 24 * 60 * 60

type webPushSendFunc func(ctx context.Context, message []byte, s *webpush.Subscription, options *webpush.Options) (*http.Response, error)

// VAPIDConfig identifies this server to browser push services.
type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
	Icon       string
}

// WebPushAdapter delivers to browser subscriptions over the Web Push protocol.
type WebPushAdapter struct {
	vapid VAPIDConfig
	send  webPushSendFunc
}

func NewWebPushAdapter(vapid VAPIDConfig) *WebPushAdapter {
	return &WebPushAdapter{vapid: vapid, send: webpush.SendNotificationWithContext}
}

func (a *WebPushAdapter) Channel() models.Channel { return models.ChannelWebPush }

// webPushMessage is the JSON the service worker receives.
type webPushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
	Tag   string            `json:"tag,omitempty"`
}

func (a *WebPushAdapter) Send(ctx context.Context, endpoint models.Endpoint, p Payload) error {
	cred := endpoint.Credential
	if err := validateSubscription(cred); err != nil {
		return NewPermanentError(models.ChannelWebPush, models.ReasonProviderRejected, 0, err)
	}

	message, err := json.Marshal(webPushMessage{
		Title: p.Title,
		Body:  p.Body,
		Icon:  a.vapid.Icon,
		Data:  p.Data,
		Tag:   p.Tag,
	})
	if err != nil {
		return NewTransientError(models.ChannelWebPush, 0, fmt.Errorf("encode payload: %w", err))
	}

	urgency := webpush.UrgencyNormal
	if p.Priority == models.PriorityHigh {
		urgency = webpush.UrgencyHigh
	}

	res, err := a.send(ctx, message, &webpush.Subscription{
		Endpoint: cred.Endpoint,
		Keys: webpush.Keys{
			P256dh: cred.Keys.P256dh,
			Auth:   cred.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      a.vapid.Subject,
		VAPIDPublicKey:  a.vapid.PublicKey,
		VAPIDPrivateKey: a.vapid.PrivateKey,
		TTL:             webPushTTL,
		Urgency:         urgency,
	})
	if err != nil {
		return NewTransientError(models.ChannelWebPush, 0, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		return nil
	case res.StatusCode == http.StatusNotFound, res.StatusCode == http.StatusGone:
		return NewPermanentError(models.ChannelWebPush, models.ReasonExpired, res.StatusCode,
			errors.New("push subscription no longer exists"))
	}
	return NewTransientError(models.ChannelWebPush, res.StatusCode,
		fmt.Errorf("push service responded %s", res.Status))
}

func validateSubscription(cred models.Credential) error {
	u, err := url.Parse(cred.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return errors.New("subscription endpoint must be an https URL")
	}
	if cred.Keys.P256dh == "" || cred.Keys.Auth == "" {
		return errors.New("subscription keys are incomplete")
	}
	return nil
}
