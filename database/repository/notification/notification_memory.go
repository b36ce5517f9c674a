package notificationRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"wayfinder/models"

	"github.com/google/uuid"
)

type memoryNotificationRepo struct {
	mu      sync.RWMutex
	seq     int64
	byID    map[string]*models.Notification
	byOwner map[string][]*models.Notification
}

// NewMemoryNotificationRepo returns a process-local NotificationRepository.
func NewMemoryNotificationRepo() NotificationRepository {
	return &memoryNotificationRepo{
		byID:    make(map[string]*models.Notification),
		byOwner: make(map[string][]*models.Notification),
	}
}

func (r *memoryNotificationRepo) Insert(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	stamp(n, func() string { return uuid.New().String() }, r.seq)

	stored := cloneNotification(n)
	r.byID[stored.ID] = stored
	r.byOwner[stored.RecipientID] = append(r.byOwner[stored.RecipientID], stored)
	return nil
}

func (r *memoryNotificationRepo) GetByID(_ context.Context, recipientID, id string) (*models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byID[id]
	if !ok || n.RecipientID != recipientID {
		return nil, models.ErrNotFound
	}
	return cloneNotification(n), nil
}

func (r *memoryNotificationRepo) List(_ context.Context, recipientID string, q models.NotificationQuery) ([]models.Notification, error) {
	r.mu.RLock()
	owned := r.byOwner[recipientID]
	matched := make([]models.Notification, 0, len(owned))
	for _, n := range owned {
		if q.Since != nil && !n.CreatedAt.After(*q.Since) {
			continue
		}
		if q.Before != nil && !before(n, q.Before) {
			continue
		}
		matched = append(matched, *cloneNotification(n))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Seq > matched[j].Seq
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (r *memoryNotificationRepo) MarkRead(_ context.Context, recipientID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok || n.RecipientID != recipientID {
		return models.ErrNotFound
	}
	markRead(n, at)
	return nil
}

func (r *memoryNotificationRepo) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed int64
	for _, n := range r.byOwner[recipientID] {
		if markRead(n, at) {
			changed++
		}
	}
	return changed, nil
}

func (r *memoryNotificationRepo) CountUnread(_ context.Context, recipientID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, n := range r.byOwner[recipientID] {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func markRead(n *models.Notification, at time.Time) bool {
	if n.Read {
		return false
	}
	readAt := at.UTC().Truncate(time.Millisecond)
	n.Read = true
	n.ReadAt = &readAt
	return true
}

func before(n *models.Notification, c *models.NotificationCursor) bool {
	if n.CreatedAt.Equal(c.CreatedAt) {
		return n.Seq < c.Seq
	}
	return n.CreatedAt.Before(c.CreatedAt)
}

func cloneNotification(n *models.Notification) *models.Notification {
	out := *n
	if n.RelatedTo != nil {
		ref := *n.RelatedTo
		out.RelatedTo = &ref
	}
	if n.ReadAt != nil {
		at := *n.ReadAt
		out.ReadAt = &at
	}
	if n.Data != nil {
		out.Data = make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			out.Data[k] = v
		}
	}
	return &out
}
