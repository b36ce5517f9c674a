package subscriptionRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"wayfinder/models"

	"github.com/google/uuid"
)

// MemoryEndpointRepo implements EndpointRepository in process memory.
type MemoryEndpointRepo struct {
	mu    sync.RWMutex
	byID  map[string]*models.Endpoint
	byKey map[string]*models.Endpoint
}

func NewMemoryEndpointRepo() *MemoryEndpointRepo {
	return &MemoryEndpointRepo{
		byID:  make(map[string]*models.Endpoint),
		byKey: make(map[string]*models.Endpoint),
	}
}

func (r *MemoryEndpointRepo) Upsert(_ context.Context, e models.Endpoint, now time.Time) (*models.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now = now.UTC()
	existing, ok := r.byKey[e.CredentialKey]
	if !ok {
		existing = &models.Endpoint{
			ID:            uuid.New().String(),
			CredentialKey: e.CredentialKey,
			CreatedAt:     now,
		}
		r.byKey[e.CredentialKey] = existing
		r.byID[existing.ID] = existing
	}
	existing.UserID = e.UserID
	existing.Channel = e.Channel
	existing.Credential = e.Credential
	if e.Metadata != nil {
		existing.Metadata = e.Metadata
	}
	existing.IsActive = true
	existing.DeactivatedReason = ""
	existing.LastSeenAt = now
	existing.UpdatedAt = now

	out := cloneEndpoint(existing)
	return &out, nil
}

func (r *MemoryEndpointRepo) GetByID(_ context.Context, id string) (*models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := cloneEndpoint(e)
	return &out, nil
}

func (r *MemoryEndpointRepo) GetByCredentialKey(_ context.Context, key string) (*models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.byKey[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := cloneEndpoint(e)
	return &out, nil
}

func (r *MemoryEndpointRepo) ListActiveByUser(_ context.Context, userID string) ([]models.Endpoint, error) {
	return r.filter(func(e *models.Endpoint) bool {
		return e.UserID == userID && e.IsActive
	}), nil
}

func (r *MemoryEndpointRepo) ListActiveByIDs(_ context.Context, userID string, ids []string) ([]models.Endpoint, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return r.filter(func(e *models.Endpoint) bool {
		_, ok := wanted[e.ID]
		return ok && e.UserID == userID && e.IsActive
	}), nil
}

func (r *MemoryEndpointRepo) Deactivate(_ context.Context, id string, reason models.DeactivationReason, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	e.IsActive = false
	e.DeactivatedReason = reason
	e.UpdatedAt = now.UTC()
	return nil
}

func (r *MemoryEndpointRepo) DeactivateIfNotSeenSince(_ context.Context, id string, reason models.DeactivationReason, seenAt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return false, models.ErrNotFound
	}
	if e.LastSeenAt.After(seenAt) {
		return false, nil
	}
	e.IsActive = false
	e.DeactivatedReason = reason
	e.UpdatedAt = now.UTC()
	return true, nil
}

// Count returns how many endpoint rows exist, active or not.
func (r *MemoryEndpointRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *MemoryEndpointRepo) filter(keep func(*models.Endpoint) bool) []models.Endpoint {
	r.mu.RLock()
	out := []models.Endpoint{}
	for _, e := range r.byID {
		if keep(e) {
			out = append(out, cloneEndpoint(e))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneEndpoint(e *models.Endpoint) models.Endpoint {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
