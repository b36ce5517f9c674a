package notificationRepo

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

const counterKey = "notifications"

type mongoNotificationRepo struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMongoNotificationRepo returns a NotificationRepository backed by MongoDB.
func NewMongoNotificationRepo(db *mongo.Database) NotificationRepository {
	repo := &mongoNotificationRepo{
		coll:     db.Collection("notifications"),
		counters: db.Collection("counters"),
	}
	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create notification indexes: %v\n", err)
	}
	return repo
}

// nextSeq allocates the insertion sequence used to break createdAt ties.
func (r *mongoNotificationRepo) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": counterKey},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate notification sequence: %w", err)
	}
	return counter.Seq, nil
}

// Insert stores a new notification record.
func (r *mongoNotificationRepo) Insert(ctx context.Context, n *models.Notification) error {
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}
	stamp(n, func() string { return uuid.New().String() }, seq)

	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetByID returns a notification by its ID if it belongs to recipientID.
func (r *mongoNotificationRepo) GetByID(ctx context.Context, recipientID, id string) (*models.Notification, error) {
	var n models.Notification
	err := r.coll.FindOne(ctx, bson.M{"id": id, "recipientId": recipientID}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notification %s: %w", id, err)
	}
	return &n, nil
}

// List fetches a newest-first window of the recipient's notifications.
func (r *mongoNotificationRepo) List(ctx context.Context, recipientID string, q models.NotificationQuery) ([]models.Notification, error) {
	filter := bson.M{"recipientId": recipientID}
	if q.Since != nil {
		filter["createdAt"] = bson.M{"$gt": q.Since.UTC()}
	}
	if q.Before != nil {
		before := q.Before.CreatedAt.UTC()
		filter["$or"] = bson.A{
			bson.M{"createdAt": bson.M{"$lt": before}},
			bson.M{"createdAt": before, "seq": bson.M{"$lt": q.Before.Seq}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(q.Limit))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer cursor.Close(ctx)

	notifications := []models.Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead sets read on one notification. A second call is a no-op.
func (r *mongoNotificationRepo) MarkRead(ctx context.Context, recipientID, id string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"id": id, "recipientId": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true, "readAt": at.UTC()}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing unread matched: either already read, or not ours to see.
	count, err := r.coll.CountDocuments(ctx, bson.M{"id": id, "recipientId": recipientID})
	if err != nil {
		return fmt.Errorf("failed to look up notification %s: %w", id, err)
	}
	if count == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MarkAllRead sets read on every unread notification of the recipient.
func (r *mongoNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"recipientId": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true, "readAt": at.UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}

// CountUnread counts unread notifications of the recipient.
func (r *mongoNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{"recipientId": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
