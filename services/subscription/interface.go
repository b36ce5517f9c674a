package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	subscriptionRepo "wayfinder/database/repository/subscription"
	"wayfinder/models"

	"go.uber.org/zap"
)

// Registry stores the push endpoints of every user.
type Registry interface {
	Register(ctx context.Context, userID string, channel models.Channel, cred models.Credential, metadata map[string]string) (*models.Endpoint, error)
	ListActive(ctx context.Context, userID string) ([]models.Endpoint, error)
	ListActiveByIDs(ctx context.Context, userID string, ids []string) ([]models.Endpoint, error)
	Deactivate(ctx context.Context, endpointID string, reason models.DeactivationReason) error
	DeactivateIfUnchanged(ctx context.Context, ep models.Endpoint, reason models.DeactivationReason) (bool, error)
	Unregister(ctx context.Context, userID, credentialKey string) error
}

// DefaultRegistry is the production implementation.
type DefaultRegistry struct {
	Repo   subscriptionRepo.EndpointRepository
	Logger *zap.Logger
	Now    func() time.Time
}

func NewDefaultRegistry(repo subscriptionRepo.EndpointRepository, logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{Repo: repo, Logger: logger, Now: time.Now}
}

// Register upserts an endpoint on its credential identity. Re-registering a
// credential, even one last seen under another user after a reinstall,
// reassigns and reactivates the existing row.
func (r *DefaultRegistry) Register(
	ctx context.Context,
	userID string,
	channel models.Channel,
	cred models.Credential,
	metadata map[string]string,
) (*models.Endpoint, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.NewValidationError("userId", "is required")
	}
	if !channel.Valid() {
		return nil, models.NewValidationError("channel", fmt.Sprintf("unrecognized channel %q", channel))
	}
	cred.Token = strings.TrimSpace(cred.Token)
	cred.Endpoint = strings.TrimSpace(cred.Endpoint)
	key := cred.Key()
	if key == "" {
		return nil, models.NewValidationError("credential", "is empty")
	}

	ep, err := r.Repo.Upsert(ctx, models.Endpoint{
		UserID:        userID,
		Channel:       channel,
		Credential:    cred,
		CredentialKey: key,
		Metadata:      metadata,
	}, r.Now())
	if err != nil {
		return nil, fmt.Errorf("Register: %w", err)
	}

	r.Logger.Debug("push endpoint registered",
		zap.String("endpointId", ep.ID),
		zap.String("userId", userID),
		zap.String("channel", string(channel)),
	)
	return ep, nil
}

// ListActive returns every active endpoint of userID, all channels.
func (r *DefaultRegistry) ListActive(ctx context.Context, userID string) ([]models.Endpoint, error) {
	endpoints, err := r.Repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListActive: %w", err)
	}
	return endpoints, nil
}

// ListActiveByIDs narrows ListActive to the given endpoint ids.
func (r *DefaultRegistry) ListActiveByIDs(ctx context.Context, userID string, ids []string) ([]models.Endpoint, error) {
	endpoints, err := r.Repo.ListActiveByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("ListActiveByIDs: %w", err)
	}
	return endpoints, nil
}

// Deactivate soft-deletes an endpoint. The reason is only logged.
func (r *DefaultRegistry) Deactivate(ctx context.Context, endpointID string, reason models.DeactivationReason) error {
	if err := r.Repo.Deactivate(ctx, endpointID, reason, r.Now()); err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	r.Logger.Info("push endpoint deactivated",
		zap.String("endpointId", endpointID),
		zap.String("reason", string(reason)),
	)
	return nil
}

// DeactivateIfUnchanged deactivates ep unless its credential was registered
// again after ep was read. It reports whether the row was deactivated.
func (r *DefaultRegistry) DeactivateIfUnchanged(ctx context.Context, ep models.Endpoint, reason models.DeactivationReason) (bool, error) {
	changed, err := r.Repo.DeactivateIfNotSeenSince(ctx, ep.ID, reason, ep.LastSeenAt, r.Now())
	if err != nil {
		return false, fmt.Errorf("DeactivateIfUnchanged: %w", err)
	}
	if !changed {
		r.Logger.Info("push endpoint re-registered since dispatch, kept active",
			zap.String("endpointId", ep.ID),
			zap.String("reason", string(reason)),
		)
		return false, nil
	}
	r.Logger.Info("push endpoint deactivated",
		zap.String("endpointId", ep.ID),
		zap.String("reason", string(reason)),
	)
	return true, nil
}

// Unregister deactivates the caller's endpoint for credentialKey. Endpoints
// owned by other users are reported as models.ErrNotFound.
func (r *DefaultRegistry) Unregister(ctx context.Context, userID, credentialKey string) error {
	credentialKey = strings.TrimSpace(credentialKey)
	if credentialKey == "" {
		return models.NewValidationError("credential", "is empty")
	}
	ep, err := r.Repo.GetByCredentialKey(ctx, credentialKey)
	if err != nil {
		return err
	}
	if ep.UserID != userID {
		return models.ErrNotFound
	}
	return r.Deactivate(ctx, ep.ID, models.ReasonUnregistered)
}
