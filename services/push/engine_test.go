package push

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	subscriptionRepo "wayfinder/database/repository/subscription"
	"wayfinder/models"
	"wayfinder/services/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	mu          sync.Mutex
	endpoints   []models.Endpoint
	deactivated map[string]models.DeactivationReason
}

func newFakeRegistry(endpoints ...models.Endpoint) *fakeRegistry {
	return &fakeRegistry{endpoints: endpoints, deactivated: map[string]models.DeactivationReason{}}
}

func (r *fakeRegistry) ListActive(_ context.Context, userID string) ([]models.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Endpoint
	for _, e := range r.endpoints {
		if _, gone := r.deactivated[e.ID]; e.UserID == userID && !gone {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRegistry) DeactivateIfUnchanged(_ context.Context, ep models.Endpoint, reason models.DeactivationReason) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivated[ep.ID] = reason
	return true, nil
}

type fakeAdapter struct {
	channel models.Channel
	mu      sync.Mutex
	sent    []string
	fail    func(ep models.Endpoint) error
}

func (a *fakeAdapter) Channel() models.Channel { return a.channel }

func (a *fakeAdapter) Send(ctx context.Context, ep models.Endpoint, _ Payload) error {
	a.mu.Lock()
	a.sent = append(a.sent, ep.ID)
	a.mu.Unlock()
	if a.fail != nil {
		return a.fail(ep)
	}
	return nil
}

func endpoint(id, user string, ch models.Channel) models.Endpoint {
	return models.Endpoint{ID: id, UserID: user, Channel: ch, IsActive: true, Credential: models.Credential{Token: id}}
}

func testNotification() *models.Notification {
	return &models.Notification{
		ID:          "n-1",
		RecipientID: "u1",
		Type:        models.NotificationLike,
		Title:       "New like",
		Message:     "B liked your post",
		RelatedTo:   &models.EntityRef{Kind: "post", ID: "p1"},
		ActionBy:    "u2",
		Priority:    models.PriorityNormal,
		CreatedAt:   time.Now(),
	}
}

func TestDispatchNoEndpoints(t *testing.T) {
	engine := NewEngine(newFakeRegistry(), time.Second, nil, &fakeAdapter{channel: models.ChannelFCM})

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
	assert.Empty(t, report.Results)
}

func TestDispatchPermanentFailureDeactivatesOnlyThatEndpoint(t *testing.T) {
	reg := newFakeRegistry(
		endpoint("e1", "u1", models.ChannelFCM),
		endpoint("e2", "u1", models.ChannelFCM),
		endpoint("e3", "u1", models.ChannelFCM),
	)
	adapter := &fakeAdapter{channel: models.ChannelFCM, fail: func(ep models.Endpoint) error {
		if ep.ID == "e2" {
			return NewPermanentError(models.ChannelFCM, models.ReasonExpired, 404, errors.New("unregistered"))
		}
		return nil
	}}
	engine := NewEngine(reg, time.Second, nil, adapter)

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Deactivated)
	assert.Equal(t, map[string]models.DeactivationReason{"e2": models.ReasonExpired}, reg.deactivated)

	active, _ := reg.ListActive(context.Background(), "u1")
	assert.Len(t, active, 2)
}

func TestDispatchTransientFailureKeepsEndpoint(t *testing.T) {
	reg := newFakeRegistry(endpoint("e1", "u1", models.ChannelWebPush))
	adapter := &fakeAdapter{channel: models.ChannelWebPush, fail: func(models.Endpoint) error {
		return NewTransientError(models.ChannelWebPush, 503, errors.New("unavailable"))
	}}
	engine := NewEngine(reg, time.Second, nil, adapter)

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Deactivated)
	assert.Equal(t, []string{"e1"}, report.TransientEndpointIDs())
	assert.Empty(t, reg.deactivated)
}

func TestDispatchTimeoutIsTransient(t *testing.T) {
	reg := newFakeRegistry(endpoint("slow", "u1", models.ChannelAPNs), endpoint("fast", "u1", models.ChannelAPNs))
	adapter := &fakeAdapter{channel: models.ChannelAPNs}
	adapter.fail = func(ep models.Endpoint) error {
		if ep.ID == "slow" {
			time.Sleep(200 * time.Millisecond)
			return context.DeadlineExceeded
		}
		return nil
	}
	engine := NewEngine(reg, 20*time.Millisecond, nil, adapter)

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, models.StatusTransientFailure, report.Results[0].Status)
	assert.Equal(t, models.StatusDelivered, report.Results[1].Status)
	assert.Empty(t, reg.deactivated)
}

func TestDispatchWithoutAdapterForAnyEndpoint(t *testing.T) {
	reg := newFakeRegistry(endpoint("e1", "u1", models.ChannelAPNs))
	engine := NewEngine(reg, time.Second, nil, &fakeAdapter{channel: models.ChannelFCM})

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Equal(t, 0, report.Attempted)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.StatusUnavailable, report.Results[0].Status)
}

func TestDispatchSkipsChannelsWithoutAdapter(t *testing.T) {
	reg := newFakeRegistry(endpoint("e1", "u1", models.ChannelAPNs), endpoint("e2", "u1", models.ChannelFCM))
	fcm := &fakeAdapter{channel: models.ChannelFCM}
	engine := NewEngine(reg, time.Second, nil, fcm)

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{"e2"}, fcm.sent)
	assert.Equal(t, models.StatusUnavailable, report.Results[0].Status)
}

func TestDispatchUnclassifiedErrorIsTransient(t *testing.T) {
	reg := newFakeRegistry(endpoint("e1", "u1", models.ChannelFCM))
	adapter := &fakeAdapter{channel: models.ChannelFCM, fail: func(models.Endpoint) error {
		return errors.New("connection reset")
	}}
	engine := NewEngine(reg, time.Second, nil, adapter)

	report, err := engine.Dispatch(context.Background(), testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTransientFailure, report.Results[0].Status)
	assert.Empty(t, reg.deactivated)
}

func TestChannelsSorted(t *testing.T) {
	engine := NewEngine(newFakeRegistry(), time.Second, nil,
		&fakeAdapter{channel: models.ChannelWebPush},
		&fakeAdapter{channel: models.ChannelAPNs},
	)
	assert.Equal(t, []models.Channel{models.ChannelAPNs, models.ChannelWebPush}, engine.Channels())
}

func TestNewPayload(t *testing.T) {
	n := testNotification()
	n.Data = map[string]string{"extra": "1"}

	p := NewPayload(n, 4)
	assert.Equal(t, "n-1", p.Data["notificationId"])
	assert.Equal(t, "like", p.Data["type"])
	assert.Equal(t, "post", p.Data["relatedKind"])
	assert.Equal(t, "p1", p.Data["relatedId"])
	assert.Equal(t, "u2", p.Data["actionBy"])
	assert.Equal(t, "1", p.Data["extra"])
	assert.Equal(t, 4, p.Badge)
	assert.Equal(t, "like:post:p1", p.Tag)
	assert.NotContains(t, n.Data, "notificationId")
}

func TestWithRateLimitDeadlineIsTransient(t *testing.T) {
	inner := &fakeAdapter{channel: models.ChannelFCM}
	limited := WithRateLimit(inner, 0.001, 1)
	ep := endpoint("e1", "u1", models.ChannelFCM)

	require.NoError(t, limited.Send(context.Background(), ep, Payload{}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := limited.Send(ctx, ep, Payload{})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Len(t, inner.sent, 1)
}

func steppingClock() func() time.Time {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var ticks atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(ticks.Add(1)) * time.Second)
	}
}

func TestDispatchLateRejectionKeepsReRegisteredEndpoint(t *testing.T) {
	ctx := context.Background()
	reg := subscription.NewDefaultRegistry(subscriptionRepo.NewMemoryEndpointRepo(), nil)
	reg.Now = steppingClock()

	_, err := reg.Register(ctx, "u1", models.ChannelFCM, models.Credential{Token: "tok"}, nil)
	require.NoError(t, err)

	// The device re-registers the same token while the provider is still
	// answering for the copy read at dispatch time.
	adapter := &fakeAdapter{channel: models.ChannelFCM, fail: func(ep models.Endpoint) error {
		_, err := reg.Register(ctx, "u1", models.ChannelFCM, models.Credential{Token: "tok"}, nil)
		assert.NoError(t, err)
		return NewPermanentError(models.ChannelFCM, models.ReasonExpired, 404, errors.New("unregistered"))
	}}
	engine := NewEngine(reg, time.Second, nil, adapter)

	report, err := engine.Dispatch(ctx, testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Deactivated)

	active, err := reg.ListActive(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Without a re-registration the same verdict does deactivate.
	adapter.fail = func(models.Endpoint) error {
		return NewPermanentError(models.ChannelFCM, models.ReasonExpired, 404, errors.New("unregistered"))
	}
	report, err = engine.Dispatch(ctx, testNotification(), "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deactivated)
	active, err = reg.ListActive(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestConcurrentDispatchToOneRecipient(t *testing.T) {
	reg := newFakeRegistry(
		endpoint("e1", "u1", models.ChannelFCM),
		endpoint("e2", "u1", models.ChannelFCM),
		endpoint("e3", "u1", models.ChannelWebPush),
	)
	fcm := &fakeAdapter{channel: models.ChannelFCM}
	web := &fakeAdapter{channel: models.ChannelWebPush}
	engine := NewEngine(reg, time.Second, nil, fcm, web)

	const dispatches = 16
	reports := make([]models.DispatchReport, dispatches)
	var wg sync.WaitGroup
	for i := 0; i < dispatches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := engine.Dispatch(context.Background(), testNotification(), "u1", int64(i))
			assert.NoError(t, err)
			reports[i] = report
		}(i)
	}
	wg.Wait()

	for _, report := range reports {
		assert.Equal(t, 3, report.Attempted)
		assert.Equal(t, 3, report.Succeeded)
		assert.Len(t, report.Results, 3)
	}
	assert.Len(t, fcm.sent, 2*dispatches)
	assert.Len(t, web.sent, dispatches)
	assert.Empty(t, reg.deactivated)
}
