package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"wayfinder/models"

	"firebase.google.com/go/v4/messaging"
	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFCM struct {
	got *messaging.Message
	err error
}

func (f *fakeFCM) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.got = m
	return "projects/x/messages/1", f.err
}

func TestFCMAdapterMessageShape(t *testing.T) {
	sender := &fakeFCM{}
	adapter := NewFCMAdapter(sender)
	n := testNotification()
	n.Priority = models.PriorityHigh

	err := adapter.Send(context.Background(), endpoint("tok-1", "u1", models.ChannelFCM), NewPayload(n, 3))
	require.NoError(t, err)
	require.NotNil(t, sender.got)
	assert.Equal(t, "tok-1", sender.got.Token)
	assert.Equal(t, "New like", sender.got.Notification.Title)
	assert.Equal(t, "B liked your post", sender.got.Notification.Body)
	assert.Equal(t, "n-1", sender.got.Data["notificationId"])
	assert.Equal(t, "high", sender.got.Android.Priority)
	assert.Equal(t, "10", sender.got.APNS.Headers["apns-priority"])
	assert.Equal(t, 3, *sender.got.APNS.Payload.Aps.Badge)
}

func TestFCMAdapterErrors(t *testing.T) {
	adapter := NewFCMAdapter(&fakeFCM{err: errors.New("backend unavailable")})
	err := adapter.Send(context.Background(), endpoint("tok", "u1", models.ChannelFCM), Payload{})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	ep := endpoint("", "u1", models.ChannelFCM)
	ep.Credential.Token = ""
	err = adapter.Send(context.Background(), ep, Payload{})
	assert.True(t, IsPermanent(err))
}

type fakeAPNs struct {
	got *apns2.Notification
	res *apns2.Response
	err error
}

func (f *fakeAPNs) PushWithContext(_ apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	f.got = n
	return f.res, f.err
}

func TestAPNsAdapterNotificationShape(t *testing.T) {
	pusher := &fakeAPNs{res: &apns2.Response{StatusCode: http.StatusOK}}
	adapter := NewAPNsAdapter(pusher, "app.wayfinder")
	ep := endpoint("e1", "u1", models.ChannelAPNs)
	ep.Credential.Token = "a1b2c3d4"

	require.NoError(t, adapter.Send(context.Background(), ep, NewPayload(testNotification(), 2)))
	require.NotNil(t, pusher.got)
	assert.Equal(t, "a1b2c3d4", pusher.got.DeviceToken)
	assert.Equal(t, "app.wayfinder", pusher.got.Topic)
	assert.Equal(t, apns2.PriorityLow, pusher.got.Priority)

	raw, err := json.Marshal(pusher.got.Payload)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	aps := body["aps"].(map[string]any)
	alert := aps["alert"].(map[string]any)
	assert.Equal(t, "New like", alert["title"])
	assert.Equal(t, "B liked your post", alert["body"])
	assert.EqualValues(t, 2, aps["badge"])
	assert.Equal(t, "default", aps["sound"])
	assert.Equal(t, "n-1", body["notificationId"])
}

func TestAPNsAdapterClassification(t *testing.T) {
	cases := []struct {
		name      string
		res       *apns2.Response
		err       error
		permanent bool
		reason    models.DeactivationReason
	}{
		{"unregistered", &apns2.Response{StatusCode: 410, Reason: apns2.ReasonUnregistered}, nil, true, models.ReasonExpired},
		{"bad token", &apns2.Response{StatusCode: 400, Reason: apns2.ReasonBadDeviceToken}, nil, true, models.ReasonProviderRejected},
		{"wrong topic", &apns2.Response{StatusCode: 400, Reason: apns2.ReasonDeviceTokenNotForTopic}, nil, true, models.ReasonProviderRejected},
		{"throttled", &apns2.Response{StatusCode: 429, Reason: apns2.ReasonTooManyRequests}, nil, false, ""},
		{"server error", &apns2.Response{StatusCode: 503, Reason: apns2.ReasonServiceUnavailable}, nil, false, ""},
		{"network", nil, errors.New("dial tcp: timeout"), false, ""},
	}
	ep := endpoint("e1", "u1", models.ChannelAPNs)
	ep.Credential.Token = "abcdef"

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			adapter := NewAPNsAdapter(&fakeAPNs{res: tc.res, err: tc.err}, "app.wayfinder")
			err := adapter.Send(context.Background(), ep, Payload{})
			require.Error(t, err)
			assert.Equal(t, tc.permanent, IsPermanent(err))
			if tc.permanent {
				var pe *ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tc.reason, pe.Reason)
			}
		})
	}
}

func TestAPNsAdapterRejectsNonHexToken(t *testing.T) {
	pusher := &fakeAPNs{}
	adapter := NewAPNsAdapter(pusher, "app.wayfinder")
	ep := endpoint("e1", "u1", models.ChannelAPNs)
	ep.Credential.Token = "not-hex"

	err := adapter.Send(context.Background(), ep, Payload{})
	assert.True(t, IsPermanent(err))
	assert.Nil(t, pusher.got)
}

func webPushEndpoint() models.Endpoint {
	return models.Endpoint{
		ID:      "w1",
		UserID:  "u1",
		Channel: models.ChannelWebPush,
		Credential: models.Credential{
			Endpoint: "https://push.example.com/sub/abc",
			Keys:     models.PushKeys{P256dh: "BPk", Auth: "auth"},
		},
	}
}

func stubWebPush(status int, captured *[]byte, opts **webpush.Options) webPushSendFunc {
	return func(_ context.Context, message []byte, s *webpush.Subscription, o *webpush.Options) (*http.Response, error) {
		if captured != nil {
			*captured = message
		}
		if opts != nil {
			*opts = o
		}
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}
}

func TestWebPushAdapterPayloadShape(t *testing.T) {
	var message []byte
	var opts *webpush.Options
	adapter := NewWebPushAdapter(VAPIDConfig{PublicKey: "pub", PrivateKey: "priv", Subject: "mailto:a@b.c", Icon: "/icon.png"})
	adapter.send = stubWebPush(http.StatusCreated, &message, &opts)

	require.NoError(t, adapter.Send(context.Background(), webPushEndpoint(), NewPayload(testNotification(), 1)))

	var got webPushMessage
	require.NoError(t, json.Unmarshal(message, &got))
	assert.Equal(t, "New like", got.Title)
	assert.Equal(t, "B liked your post", got.Body)
	assert.Equal(t, "/icon.png", got.Icon)
	assert.Equal(t, "like:post:p1", got.Tag)
	assert.Equal(t, "n-1", got.Data["notificationId"])
	assert.Equal(t, "pub", opts.VAPIDPublicKey)
	assert.Equal(t, webpush.UrgencyNormal, opts.Urgency)
}

func TestWebPushAdapterStatusClassification(t *testing.T) {
	for status, permanent := range map[int]bool{
		http.StatusGone:                true,
		http.StatusNotFound:            true,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
	} {
		adapter := NewWebPushAdapter(VAPIDConfig{})
		adapter.send = stubWebPush(status, nil, nil)
		err := adapter.Send(context.Background(), webPushEndpoint(), Payload{})
		require.Error(t, err, status)
		assert.Equal(t, permanent, IsPermanent(err), status)
	}
}

func TestWebPushAdapterRejectsIncompleteSubscription(t *testing.T) {
	adapter := NewWebPushAdapter(VAPIDConfig{})
	adapter.send = stubWebPush(http.StatusCreated, nil, nil)

	ep := webPushEndpoint()
	ep.Credential.Endpoint = "http://insecure.example.com"
	assert.True(t, IsPermanent(adapter.Send(context.Background(), ep, Payload{})))

	ep = webPushEndpoint()
	ep.Credential.Keys.Auth = ""
	assert.True(t, IsPermanent(adapter.Send(context.Background(), ep, Payload{})))
}
