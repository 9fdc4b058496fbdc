package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"order-fulfillment-service/internal/model"
)

// Mongo implementation of the daily sequence counter. Each key is one
// document; the increment is a single findOneAndUpdate so concurrent
// callers are linearized by the server.
type MongoCounterRepository struct {
	col *mongo.Collection
}

func NewMongoCounterRepository(db *mongo.Database) *MongoCounterRepository {
	return &MongoCounterRepository{col: db.Collection("counters")}
}

// Increment bumps the counter at key by 1, creating it at 0 first if
// absent, and returns the post-increment value.
func (m *MongoCounterRepository) Increment(ctx context.Context, key string) (int64, error) {
	filter := bson.M{"_id": key}
	update := bson.M{"$inc": bson.M{"seq": 1}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c model.Counter
	if err := m.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		return 0, fmt.Errorf("incrementing counter %q: %w", key, err)
	}
	return c.Seq, nil
}
