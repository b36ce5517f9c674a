package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	notificationRepo "wayfinder/database/repository/notification"
	subscriptionRepo "wayfinder/database/repository/subscription"
	"wayfinder/handlers"
	"wayfinder/middleware"
	"wayfinder/models"
	"wayfinder/services/delivery"
	"wayfinder/services/notification"
	"wayfinder/services/push"
	"wayfinder/services/realtime"
	"wayfinder/services/subscription"
	"wayfinder/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const internalKey = "test-internal-key"

type okAdapter struct{ channel models.Channel }

func (a okAdapter) Channel() models.Channel { return a.channel }
func (a okAdapter) Send(context.Context, models.Endpoint, push.Payload) error {
	return nil
}

type testApp struct {
	router *gin.Engine
	hub    *realtime.Hub
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	store, err := notification.NewDefaultNotificationStore(notificationRepo.NewMemoryNotificationRepo(), nil, nil)
	require.NoError(t, err)
	registry := subscription.NewDefaultRegistry(subscriptionRepo.NewMemoryEndpointRepo(), nil)
	engine := push.NewEngine(registry, time.Second, nil, okAdapter{models.ChannelFCM}, okAdapter{models.ChannelWebPush})
	hub := realtime.NewHub(utils.ExtractIDFromToken, realtime.Config{}, nil)
	coord, err := delivery.NewDefaultCoordinator(store, engine, hub, registry, nil, delivery.Options{}, nil)
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router, &handlers.HandlerBundle{
		InternalAPIKey:    internalKey,
		MaxRequestsPerMin: 10000,
		Notifications:     handlers.NewNotificationHandler(store, coord),
		Subscriptions:     handlers.NewSubscriptionHandler(registry, "vapid-public"),
		Realtime:          handlers.NewRealtimeHandler(hub),
		Internal:          handlers.NewInternalHandler(coord),
	})
	t.Cleanup(hub.Shutdown)
	return &testApp{router: router, hub: hub}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := utils.GenerateToken(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (a *testApp) do(method, path, auth string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) notify(t *testing.T, recipient string) models.DeliveryResult {
	t.Helper()
	body, _ := json.Marshal(models.CreateNotificationInput{
		RecipientID: recipient,
		Type:        models.NotificationComment,
		Title:       "New comment",
		Message:     "B commented on your post",
		RelatedTo:   &models.EntityRef{Kind: "post", ID: "p1"},
	})
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(utils.InternalKeyHeader, internalKey)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result models.DeliveryResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return result
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := newTestApp(t)
	assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/api/notifications", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(http.MethodGet, "/api/notifications", "Bearer nope", nil).Code)
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/health", "", nil).Code)
}

func TestInternalRoutesRequireKey(t *testing.T) {
	app := newTestApp(t)
	w := app.do(http.MethodPost, "/internal/notifications", "", models.CreateNotificationInput{RecipientID: "A", Type: models.NotificationLike})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalNotifyRejectsUnknownType(t *testing.T) {
	app := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/internal/notifications",
		strings.NewReader(`{"recipientId":"A","type":"poke"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(utils.InternalKeyHeader, internalKey)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNotificationFeedFlow(t *testing.T) {
	app := newTestApp(t)
	authA := bearer(t, "A")

	first := app.notify(t, "A")
	second := app.notify(t, "A")
	app.notify(t, "B")

	w := app.do(http.MethodGet, "/api/notifications?limit=1", authA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.NotificationPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, second.NotificationID, page.Notifications[0].ID)
	assert.True(t, page.HasMore)

	w = app.do(http.MethodGet, "/api/notifications?before="+page.NextCursor, authA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, first.NotificationID, page.Notifications[0].ID)

	w = app.do(http.MethodGet, "/api/notifications/unread-count", authA, nil)
	assert.JSONEq(t, `{"unreadCount":2}`, w.Body.String())

	w = app.do(http.MethodPost, "/api/notifications/"+first.NotificationID+"/read", authA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"read":true,"unreadCount":1}`, w.Body.String())

	w = app.do(http.MethodPost, "/api/notifications/"+first.NotificationID+"/read", bearer(t, "B"), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(http.MethodPost, "/api/notifications/read-all", authA, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"updated":1,"unreadCount":0}`, w.Body.String())

	w = app.do(http.MethodGet, "/api/notifications?since=not-a-time", authA, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPushSubscriptionFlow(t *testing.T) {
	app := newTestApp(t)
	authA := bearer(t, "A")

	w := app.do(http.MethodGet, "/api/push-public-key", "", nil)
	assert.JSONEq(t, `{"publicKey":"vapid-public"}`, w.Body.String())

	sub := map[string]any{
		"channel": "webpush",
		"credential": map[string]any{
			"endpoint": "https://push.example.com/sub/1",
			"keys":     map[string]string{"p256dh": "k", "auth": "a"},
		},
		"metadata": map[string]string{"browser": "firefox"},
	}
	w = app.do(http.MethodPost, "/api/push-subscriptions", authA, sub)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ep models.Endpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ep))
	assert.True(t, ep.IsActive)
	assert.NotContains(t, w.Body.String(), "p256dh", "credentials are never echoed")

	w = app.do(http.MethodPost, "/api/push-subscriptions", authA, map[string]any{"channel": "pigeon", "credential": map[string]string{"token": "x"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodGet, "/api/push-subscriptions", authA, nil)
	var list struct {
		Subscriptions []models.Endpoint `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Subscriptions, 1)

	result := app.notify(t, "A")
	assert.Equal(t, 1, result.Push.Succeeded)

	w = app.do(http.MethodDelete, "/api/push-subscriptions", bearer(t, "B"), map[string]any{"credential": sub["credential"]})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = app.do(http.MethodDelete, "/api/push-subscriptions", authA, map[string]any{"credential": sub["credential"]})
	assert.Equal(t, http.StatusOK, w.Code)

	result = app.notify(t, "A")
	assert.Equal(t, 0, result.Push.Attempted)
}

func TestRealtimeReceivesNotification(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	token, err := utils.GenerateToken("A", time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, models.EventConnectionReady, env.Type)

	result := app.notify(t, "A")
	assert.Equal(t, 1, result.Broadcast.Delivered)

	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, models.EventNotificationCreated, env.Type)
	var ev models.NotificationCreatedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &ev))
	assert.Equal(t, result.NotificationID, ev.Notification.ID)
	assert.Equal(t, int64(1), ev.UnreadCount)
}

func TestLateConnectionCatchesUpThroughFeed(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.router)
	defer srv.Close()

	created := app.notify(t, "A")
	assert.Equal(t, 0, created.Broadcast.Connections)

	token, err := utils.GenerateToken("A", time.Hour)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, models.EventConnectionReady, env.Type)

	// Nothing is replayed onto the socket.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	assert.Error(t, conn.ReadJSON(&env))

	w := app.do(http.MethodGet, "/api/notifications?limit=1", bearer(t, "A"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.NotificationPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, created.NotificationID, page.Notifications[0].ID)
}
