package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"wayfinder/models"
	"wayfinder/services/notification"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultRetryBackoff = 30 * time.Second

var ErrSchedulerUnavailable = errors.New("task scheduler not configured")

// PushEngine is the push fan-out the coordinator drives.
type PushEngine interface {
	Dispatch(ctx context.Context, n *models.Notification, recipientID string, badge int64) (models.DispatchReport, error)
	DispatchTo(ctx context.Context, n *models.Notification, endpoints []models.Endpoint, badge int64) (models.DispatchReport, error)
}

// Broadcaster fans envelopes out to a user's live connections.
type Broadcaster interface {
	Broadcast(userID string, env models.Envelope) models.BroadcastReport
}

// EndpointLister resolves the endpoints named in a retry task.
type EndpointLister interface {
	ListActiveByIDs(ctx context.Context, userID string, ids []string) ([]models.Endpoint, error)
}

// Scheduler enqueues deferred work. It is optional: without one, transient
// push failures are only reported and reminders are refused.
type Scheduler interface {
	SchedulePushRetry(ctx context.Context, payload models.PushRetryPayload, delay time.Duration) error
	ScheduleReminder(ctx context.Context, payload models.ReminderPayload) (string, error)
}

// Coordinator is the single entry point business logic calls once it has
// decided someone should be notified.
type Coordinator interface {
	Notify(ctx context.Context, input models.CreateNotificationInput) (*models.DeliveryResult, error)
	MarkRead(ctx context.Context, userID, notificationID string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (updated int64, unread int64, err error)
	RetryDelivery(ctx context.Context, payload models.PushRetryPayload) error
	ScheduleReminder(ctx context.Context, req models.ScheduleReminderRequest) (string, error)
	HandleReminder(ctx context.Context, payload models.ReminderPayload) error
}

type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultCoordinator is the production implementation.
type DefaultCoordinator struct {
	store     notification.NotificationStore
	engine    PushEngine
	hub       Broadcaster
	endpoints EndpointLister
	scheduler Scheduler
	opts      Options
	logger    *zap.Logger
}

func NewDefaultCoordinator(
	store notification.NotificationStore,
	engine PushEngine,
	hub Broadcaster,
	endpoints EndpointLister,
	scheduler Scheduler,
	opts Options,
	logger *zap.Logger,
) (*DefaultCoordinator, error) {
	if store == nil || engine == nil || hub == nil || endpoints == nil {
		return nil, fmt.Errorf("delivery coordinator initialization error: store, engine, hub and endpoints are required")
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultCoordinator{
		store:     store,
		engine:    engine,
		hub:       hub,
		endpoints: endpoints,
		scheduler: scheduler,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Notify persists the notification and then pushes and broadcasts it.
// Only the store write can fail the call.
func (d *DefaultCoordinator) Notify(ctx context.Context, input models.CreateNotificationInput) (*models.DeliveryResult, error) {
	n, err := d.store.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("Notify: %w", err)
	}

	unread, err := d.store.UnreadCount(ctx, n.RecipientID)
	if err != nil {
		d.logger.Warn("unread count unavailable for badge",
			zap.String("recipientId", n.RecipientID),
			zap.Error(err),
		)
		unread = 0
	}

	result := &models.DeliveryResult{
		NotificationID: n.ID,
		Notification:   *n,
		UnreadCount:    unread,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		report, err := d.engine.Dispatch(ctx, n, n.RecipientID, unread)
		result.Push = report
		if err != nil {
			result.PushError = err.Error()
			d.logger.Warn("push dispatch failed",
				zap.String("notificationId", n.ID),
				zap.Error(err),
			)
		}
	}()
	go func() {
		defer wg.Done()
		result.Broadcast = d.broadcast(n.RecipientID, models.EventNotificationCreated, models.NotificationCreatedEvent{
			Notification: *n,
			UnreadCount:  unread,
		})
	}()
	wg.Wait()

	if ids := result.Push.TransientEndpointIDs(); len(ids) > 0 {
		result.RetryScheduled = d.scheduleRetry(ctx, models.PushRetryPayload{
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			EndpointIDs:    ids,
			Attempt:        1,
		})
	}

	d.logger.Info("notification delivered",
		zap.String("notificationId", n.ID),
		zap.String("recipientId", n.RecipientID),
		zap.String("type", string(n.Type)),
		zap.Int("pushAttempted", result.Push.Attempted),
		zap.Int("pushSucceeded", result.Push.Succeeded),
		zap.Int("liveConnections", result.Broadcast.Connections),
	)
	return result, nil
}

// MarkRead marks one notification read and tells the user's other devices.
func (d *DefaultCoordinator) MarkRead(ctx context.Context, userID, notificationID string) (int64, error) {
	if err := d.store.MarkRead(ctx, userID, notificationID); err != nil {
		return 0, err
	}
	unread, err := d.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("MarkRead: %w", err)
	}
	d.broadcast(userID, models.EventNotificationRead, models.NotificationReadEvent{
		NotificationID: notificationID,
		UnreadCount:    unread,
	})
	return unread, nil
}

func (d *DefaultCoordinator) MarkAllRead(ctx context.Context, userID string) (int64, int64, error) {
	updated, err := d.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("MarkAllRead: %w", err)
	}
	unread, err := d.store.UnreadCount(ctx, userID)
	if err != nil {
		return updated, 0, fmt.Errorf("MarkAllRead: %w", err)
	}
	if updated > 0 {
		d.broadcast(userID, models.EventNotificationRead, models.NotificationReadEvent{
			All:         true,
			UnreadCount: unread,
		})
	}
	return updated, unread, nil
}

// RetryDelivery re-sends a stored notification to the endpoints that failed
// transiently last time, if they are still active.
func (d *DefaultCoordinator) RetryDelivery(ctx context.Context, p models.PushRetryPayload) error {
	n, err := d.store.Get(ctx, p.RecipientID, p.NotificationID)
	if errors.Is(err, models.ErrNotFound) {
		d.logger.Info("push retry dropped, notification gone", zap.String("notificationId", p.NotificationID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("RetryDelivery: %w", err)
	}
	if n.Read {
		return nil
	}

	endpoints, err := d.endpoints.ListActiveByIDs(ctx, p.RecipientID, p.EndpointIDs)
	if err != nil {
		return fmt.Errorf("RetryDelivery: %w", err)
	}
	if len(endpoints) == 0 {
		return nil
	}

	unread, err := d.store.UnreadCount(ctx, p.RecipientID)
	if err != nil {
		unread = 0
	}

	report, err := d.engine.DispatchTo(ctx, n, endpoints, unread)
	if err != nil {
		d.logger.Warn("push retry could not be dispatched",
			zap.String("notificationId", n.ID),
			zap.Int("attempt", p.Attempt),
			zap.Error(err),
		)
		return nil
	}

	if ids := report.TransientEndpointIDs(); len(ids) > 0 {
		d.scheduleRetry(ctx, models.PushRetryPayload{
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			EndpointIDs:    ids,
			Attempt:        p.Attempt + 1,
		})
	}
	return nil
}

// ScheduleReminder queues a reminder notification for fireAt.
func (d *DefaultCoordinator) ScheduleReminder(ctx context.Context, req models.ScheduleReminderRequest) (string, error) {
	if strings.TrimSpace(req.RecipientID) == "" {
		return "", models.NewValidationError("recipientId", "is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return "", models.NewValidationError("title", "is required")
	}
	if req.FireAt.IsZero() {
		return "", models.NewValidationError("fireAt", "is required")
	}
	if d.scheduler == nil {
		return "", ErrSchedulerUnavailable
	}

	payload := models.ReminderPayload{
		ReminderID:  uuid.New().String(),
		RecipientID: req.RecipientID,
		Title:       req.Title,
		Body:        req.Body,
		RelatedTo:   req.RelatedTo,
		Data:        req.Data,
		FireAt:      req.FireAt.UTC(),
	}
	if _, err := d.scheduler.ScheduleReminder(ctx, payload); err != nil {
		return "", err
	}
	d.logger.Info("reminder scheduled",
		zap.String("reminderId", payload.ReminderID),
		zap.String("recipientId", payload.RecipientID),
		zap.Time("fireAt", payload.FireAt),
	)
	return payload.ReminderID, nil
}

// HandleReminder turns a due reminder into a regular notification.
func (d *DefaultCoordinator) HandleReminder(ctx context.Context, p models.ReminderPayload) error {
	data := make(map[string]string, len(p.Data)+1)
	for k, v := range p.Data {
		data[k] = v
	}
	data["reminderId"] = p.ReminderID

	_, err := d.Notify(ctx, models.CreateNotificationInput{
		RecipientID: p.RecipientID,
		Type:        models.NotificationReminder,
		Title:       p.Title,
		Message:     p.Body,
		RelatedTo:   p.RelatedTo,
		Priority:    models.PriorityHigh,
		Data:        data,
	})
	return err
}

func (d *DefaultCoordinator) broadcast(userID string, t models.EventType, payload any) models.BroadcastReport {
	env, err := models.NewEnvelope(t, payload)
	if err != nil {
		d.logger.Error("failed to build realtime envelope", zap.String("type", string(t)), zap.Error(err))
		return models.BroadcastReport{}
	}
	return d.hub.Broadcast(userID, env)
}

// scheduleRetry backs off exponentially from RetryBackoff and gives up after
// MaxRetries attempts.
func (d *DefaultCoordinator) scheduleRetry(ctx context.Context, p models.PushRetryPayload) bool {
	if d.scheduler == nil || p.Attempt > d.opts.MaxRetries {
		return false
	}
	delay := d.opts.RetryBackoff << (p.Attempt - 1)
	if err := d.scheduler.SchedulePushRetry(ctx, p, delay); err != nil {
		d.logger.Warn("failed to schedule push retry",
			zap.String("notificationId", p.NotificationID),
			zap.Int("attempt", p.Attempt),
			zap.Error(err),
		)
		return false
	}
	return true
}
