package notification

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	notificationRepo "wayfinder/database/repository/notification"
	"wayfinder/models"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// NotificationStore is the durable source of truth for notifications.
type NotificationStore interface {
	Create(ctx context.Context, input models.CreateNotificationInput) (*models.Notification, error)
	Get(ctx context.Context, recipientID, id string) (*models.Notification, error)
	ListSince(ctx context.Context, recipientID string, q models.NotificationQuery) (*models.NotificationPage, error)
	MarkRead(ctx context.Context, recipientID, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
}

// DefaultNotificationStore is the production implementation.
type DefaultNotificationStore struct {
	repo   notificationRepo.NotificationRepository
	cache  UnreadCache
	logger *zap.Logger
	now    func() time.Time
}

// NewDefaultNotificationStore wires a store; cache may be nil.
func NewDefaultNotificationStore(
	repo notificationRepo.NotificationRepository,
	cache UnreadCache,
	logger *zap.Logger,
) (*DefaultNotificationStore, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification store initialization error: repository is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultNotificationStore{
		repo:   repo,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Create validates and persists a new notification.
func (s *DefaultNotificationStore) Create(ctx context.Context, input models.CreateNotificationInput) (*models.Notification, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	n := &models.Notification{
		RecipientID: input.RecipientID,
		Type:        input.Type,
		Title:       input.Title,
		Message:     input.Message,
		RelatedTo:   input.RelatedTo,
		ActionBy:    input.ActionBy,
		Priority:    input.Priority,
		Data:        input.Data,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}
	s.invalidate(ctx, n.RecipientID)
	return n, nil
}

func validateCreate(input *models.CreateNotificationInput) error {
	input.RecipientID = strings.TrimSpace(input.RecipientID)
	if input.RecipientID == "" {
		return models.NewValidationError("recipientId", "is required")
	}
	if input.Type == "" {
		return models.NewValidationError("type", "is required")
	}
	if !input.Type.Valid() {
		return models.NewValidationError("type", fmt.Sprintf("unknown notification type %q", input.Type))
	}
	if input.Priority == "" {
		input.Priority = models.PriorityNormal
	}
	if !input.Priority.Valid() {
		return models.NewValidationError("priority", fmt.Sprintf("unknown priority %q", input.Priority))
	}
	if ref := input.RelatedTo; ref != nil && (ref.Kind == "" || ref.ID == "") {
		return models.NewValidationError("relatedTo", "kind and id are both required")
	}
	return nil
}

// Get returns one notification of the recipient.
func (s *DefaultNotificationStore) Get(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	return s.repo.GetByID(ctx, recipientID, id)
}

// ListSince returns a newest-first snapshot of the recipient's notifications.
func (s *DefaultNotificationStore) ListSince(ctx context.Context, recipientID string, q models.NotificationQuery) (*models.NotificationPage, error) {
	if recipientID == "" {
		return nil, models.NewValidationError("recipientId", "is required")
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	// One extra row tells us whether another page exists.
	q.Limit = limit + 1
	items, err := s.repo.List(ctx, recipientID, q)
	if err != nil {
		return nil, fmt.Errorf("ListSince: %w", err)
	}

	page := &models.NotificationPage{Notifications: items}
	if len(items) > limit {
		page.Notifications = items[:limit]
		page.HasMore = true
		last := page.Notifications[limit-1]
		page.NextCursor = EncodeCursor(models.NotificationCursor{CreatedAt: last.CreatedAt, Seq: last.Seq})
	}
	return page, nil
}

// MarkRead marks one notification read. It is idempotent, and reports
// models.ErrNotFound for ids the recipient does not own.
func (s *DefaultNotificationStore) MarkRead(ctx context.Context, recipientID, id string) error {
	if recipientID == "" || id == "" {
		return models.ErrNotFound
	}
	if err := s.repo.MarkRead(ctx, recipientID, id, s.now()); err != nil {
		return err
	}
	s.invalidate(ctx, recipientID)
	return nil
}

// MarkAllRead marks every unread notification of the recipient read.
func (s *DefaultNotificationStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	if recipientID == "" {
		return 0, models.NewValidationError("recipientId", "is required")
	}
	changed, err := s.repo.MarkAllRead(ctx, recipientID, s.now())
	if err != nil {
		return 0, fmt.Errorf("MarkAllRead: %w", err)
	}
	s.invalidate(ctx, recipientID)
	return changed, nil
}

// UnreadCount serves from the cache when possible. A count read from the
// store is only cached if no write for the recipient happened meanwhile.
func (s *DefaultNotificationStore) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	cacheable := false
	var gen int64
	if s.cache != nil {
		count, ok, err := s.cache.Get(ctx, recipientID)
		switch {
		case err != nil:
			s.logger.Warn("unread cache read failed, falling back to store", zap.String("recipientId", recipientID), zap.Error(err))
		case ok:
			return count, nil
		default:
			gen, err = s.cache.Generation(ctx, recipientID)
			if err != nil {
				s.logger.Warn("unread cache generation unavailable", zap.String("recipientId", recipientID), zap.Error(err))
			} else {
				cacheable = true
			}
		}
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("UnreadCount: %w", err)
	}
	if cacheable {
		if err := s.cache.SetIfGeneration(ctx, recipientID, count, gen); err != nil {
			s.logger.Warn("unread cache write failed", zap.String("recipientId", recipientID), zap.Error(err))
		}
	}
	return count, nil
}

func (s *DefaultNotificationStore) invalidate(ctx context.Context, recipientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, recipientID); err != nil {
		s.logger.Warn("unread cache invalidation failed", zap.String("recipientId", recipientID), zap.Error(err))
	}
}

// EncodeCursor renders a cursor as "<unixMillis>-<seq>".
func EncodeCursor(c models.NotificationCursor) string {
	return strconv.FormatInt(c.CreatedAt.UnixMilli(), 10) + "-" + strconv.FormatInt(c.Seq, 10)
}

// ParseCursor is the inverse of EncodeCursor.
func ParseCursor(raw string) (*models.NotificationCursor, error) {
	millis, seq, ok := strings.Cut(raw, "-")
	if !ok {
		return nil, models.NewValidationError("before", "malformed cursor")
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return nil, models.NewValidationError("before", "malformed cursor")
	}
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return nil, models.NewValidationError("before", "malformed cursor")
	}
	return &models.NotificationCursor{CreatedAt: time.UnixMilli(ms).UTC(), Seq: n}, nil
}
