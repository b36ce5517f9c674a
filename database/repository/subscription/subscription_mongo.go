package subscriptionRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wayfinder/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoEndpointRepo implements EndpointRepository using MongoDB.
type MongoEndpointRepo struct {
	coll *mongo.Collection
}

// NewMongoEndpointRepo creates a new instance of EndpointRepository using MongoDB.
func NewMongoEndpointRepo(db *mongo.Database) EndpointRepository {
	repo := &MongoEndpointRepo{coll: db.Collection("push_endpoints")}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create indexes: %v\n", err)
	}
	return repo
}

// Upsert registers or refreshes the endpoint owning e.CredentialKey.
func (r *MongoEndpointRepo) Upsert(ctx context.Context, e models.Endpoint, now time.Time) (*models.Endpoint, error) {
	now = now.UTC()
	set := bson.M{
		"userId":        e.UserID,
		"channel":       e.Channel,
		"credential":    e.Credential,
		"credentialKey": e.CredentialKey,
		"isActive":      true,
		"lastSeenAt":    now,
		"updatedAt":     now,
	}
	if e.Metadata != nil {
		set["metadata"] = e.Metadata
	}
	update := bson.M{
		"$set":         set,
		"$unset":       bson.M{"deactivatedReason": ""},
		"$setOnInsert": bson.M{"id": uuid.New().String(), "createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var out models.Endpoint
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"credentialKey": e.CredentialKey}, update, opts).Decode(&out)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an insert race on the unique credentialKey; the row exists now.
		err = r.coll.FindOneAndUpdate(ctx, bson.M{"credentialKey": e.CredentialKey}, update, opts).Decode(&out)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert endpoint: %w", err)
	}
	return &out, nil
}

// GetByID retrieves an endpoint by its unique ID.
func (r *MongoEndpointRepo) GetByID(ctx context.Context, id string) (*models.Endpoint, error) {
	return r.findOne(ctx, bson.M{"id": id})
}

// GetByCredentialKey retrieves an endpoint by its credential identity.
func (r *MongoEndpointRepo) GetByCredentialKey(ctx context.Context, key string) (*models.Endpoint, error) {
	return r.findOne(ctx, bson.M{"credentialKey": key})
}

func (r *MongoEndpointRepo) findOne(ctx context.Context, filter bson.M) (*models.Endpoint, error) {
	var e models.Endpoint
	err := r.coll.FindOne(ctx, filter).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch endpoint: %w", err)
	}
	return &e, nil
}

// ListActiveByUser retrieves every active endpoint of a user.
func (r *MongoEndpointRepo) ListActiveByUser(ctx context.Context, userID string) ([]models.Endpoint, error) {
	return r.find(ctx, bson.M{"userId": userID, "isActive": true})
}

// ListActiveByIDs retrieves the active endpoints of a user among ids.
func (r *MongoEndpointRepo) ListActiveByIDs(ctx context.Context, userID string, ids []string) ([]models.Endpoint, error) {
	if len(ids) == 0 {
		return []models.Endpoint{}, nil
	}
	return r.find(ctx, bson.M{"userId": userID, "isActive": true, "id": bson.M{"$in": ids}})
}

func (r *MongoEndpointRepo) find(ctx context.Context, filter bson.M) ([]models.Endpoint, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve endpoints: %w", err)
	}
	defer cursor.Close(ctx)

	endpoints := []models.Endpoint{}
	if err := cursor.All(ctx, &endpoints); err != nil {
		return nil, fmt.Errorf("failed to decode endpoints: %w", err)
	}
	return endpoints, nil
}

// Deactivate marks an endpoint inactive without removing it.
func (r *MongoEndpointRepo) Deactivate(ctx context.Context, id string, reason models.DeactivationReason, now time.Time) error {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"isActive": false, "deactivatedReason": reason, "updatedAt": now.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate endpoint %s: %w", id, err)
	}
	if result.MatchedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeactivateIfNotSeenSince filters on lastSeenAt so a registration that
// landed after seenAt wins over a late provider verdict.
func (r *MongoEndpointRepo) DeactivateIfNotSeenSince(ctx context.Context, id string, reason models.DeactivationReason, seenAt, now time.Time) (bool, error) {
	result, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "lastSeenAt": bson.M{"$lte": seenAt.UTC()}},
		bson.M{"$set": bson.M{"isActive": false, "deactivatedReason": reason, "updatedAt": now.UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate endpoint %s: %w", id, err)
	}
	if result.MatchedCount > 0 {
		return true, nil
	}

	count, err := r.coll.CountDocuments(ctx, bson.M{"id": id})
	if err != nil {
		return false, fmt.Errorf("failed to look up endpoint %s: %w", id, err)
	}
	if count == 0 {
		return false, models.ErrNotFound
	}
	return false, nil
}
