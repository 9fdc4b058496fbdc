package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"order-fulfillment-service/internal/model"
)

// Mongo implementation of the webhook ingestion ledger.
type MongoWebhookRepository struct {
	col *mongo.Collection
}

func NewMongoWebhookRepository(db *mongo.Database) *MongoWebhookRepository {
	return &MongoWebhookRepository{col: db.Collection("webhook_events")}
}

func (m *MongoWebhookRepository) Insert(ctx context.Context, e *model.WebhookLogEntry) error {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now().UTC()
	}
	res, err := m.col.InsertOne(ctx, e)
	if err != nil {
		return err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		e.ID = id
	}
	return nil
}

// IsDuplicateKey reports whether an insert hit the partial unique index
// on provider_event_id; the loser of a concurrent race records a
// duplicate instead.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// FindActiveByProviderEventID returns the non-duplicate ledger entry
// for the given provider event id, if any. Duplicate markers are
// excluded so the dedup check sees only the authoritative entry.
func (m *MongoWebhookRepository) FindActiveByProviderEventID(ctx context.Context, providerEventID string) (*model.WebhookLogEntry, error) {
	filter := bson.M{
		"provider_event_id": providerEventID,
		"status":            bson.M{"$ne": model.WebhookDuplicate},
	}

	var e model.WebhookLogEntry
	err := m.col.FindOne(ctx, filter).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *MongoWebhookRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*model.WebhookLogEntry, error) {
	var e model.WebhookLogEntry
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (m *MongoWebhookRepository) MarkProcessed(ctx context.Context, id primitive.ObjectID, result string) error {
	now := time.Now().UTC()
	return m.update(ctx, id, bson.M{
		"status":       model.WebhookProcessed,
		"result":       result,
		"processed_at": now,
	})
}

func (m *MongoWebhookRepository) MarkDuplicate(ctx context.Context, id primitive.ObjectID, result string) error {
	return m.update(ctx, id, bson.M{
		"status": model.WebhookDuplicate,
		"result": result,
	})
}

func (m *MongoWebhookRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, retryCount int, result string) error {
	return m.update(ctx, id, bson.M{
		"status":      model.WebhookFailed,
		"retry_count": retryCount,
		"result":      result,
	})
}

// ScheduleRetry keeps the entry pending with the next attempt time.
func (m *MongoWebhookRepository) ScheduleRetry(ctx context.Context, id primitive.ObjectID, retryCount int, nextRetryAt time.Time, result string) error {
	return m.update(ctx, id, bson.M{
		"status":        model.WebhookPending,
		"retry_count":   retryCount,
		"next_retry_at": nextRetryAt,
		"result":        result,
	})
}

// ResetForReplay puts a failed entry back to pending with a fresh
// retry budget for a manual re-attempt.
func (m *MongoWebhookRepository) ResetForReplay(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "status": model.WebhookFailed}
	update := bson.M{"$set": bson.M{
		"status":        model.WebhookPending,
		"retry_count":   0,
		"next_retry_at": time.Now().UTC(),
	}}

	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDue returns pending entries whose nextRetryAt has elapsed,
// oldest first so events for the same shipment replay in receipt order.
func (m *MongoWebhookRepository) FindDue(ctx context.Context, now time.Time, limit int64) ([]*model.WebhookLogEntry, error) {
	filter := bson.M{
		"status":        model.WebhookPending,
		"next_retry_at": bson.M{"$lte": now},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: 1}}).
		SetLimit(limit)

	return m.findMany(ctx, filter, opts)
}

// FindFailed lists exhausted entries for the operator view.
func (m *MongoWebhookRepository) FindFailed(ctx context.Context) ([]*model.WebhookLogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	return m.findMany(ctx, bson.M{"status": model.WebhookFailed}, opts)
}

func (m *MongoWebhookRepository) update(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoWebhookRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.WebhookLogEntry, error) {
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.WebhookLogEntry
	for cur.Next(ctx) {
		var v model.WebhookLogEntry
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
