package subscriptionRepo

import (
	"context"
	"time"

	"wayfinder/models"
)

// EndpointRepository defines methods for push endpoint data access.
type EndpointRepository interface {
	// Upsert inserts e or, when its credential key already exists, reassigns
	// that row to e.UserID, reactivates it and refreshes lastSeenAt.
	Upsert(ctx context.Context, e models.Endpoint, now time.Time) (*models.Endpoint, error)
	// GetByID retrieves an endpoint by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Endpoint, error)
	// GetByCredentialKey retrieves an endpoint by token or push URL.
	GetByCredentialKey(ctx context.Context, key string) (*models.Endpoint, error)
	// ListActiveByUser retrieves every active endpoint of a user.
	ListActiveByUser(ctx context.Context, userID string) ([]models.Endpoint, error)
	// ListActiveByIDs retrieves the still-active endpoints of a user among ids.
	ListActiveByIDs(ctx context.Context, userID string, ids []string) ([]models.Endpoint, error)
	// Deactivate soft-deletes an endpoint. Deactivating twice is not an error.
	Deactivate(ctx context.Context, id string, reason models.DeactivationReason, now time.Time) error
	// DeactivateIfNotSeenSince deactivates the endpoint only while its
	// lastSeenAt is not after seenAt. It reports false when a newer
	// registration kept the row alive.
	DeactivateIfNotSeenSince(ctx context.Context, id string, reason models.DeactivationReason, seenAt, now time.Time) (bool, error)
}
