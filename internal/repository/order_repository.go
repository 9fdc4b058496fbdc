package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"order-fulfillment-service/internal/model"
	"order-fulfillment-service/internal/status"
)

var (
	ErrNotFound = errors.New("order not found")

	// ErrConflict means the guarded update matched no document: either
	// the order vanished or its status moved under us. Callers re-read
	// and retry or reject.
	ErrConflict = errors.New("order was modified concurrently")
)

// Mongo implementation
type MongoOrderRepository struct {
	col *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{col: db.Collection("orders")}
}

func (m *MongoOrderRepository) Insert(ctx context.Context, o *model.Order) error {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now

	_, err := m.col.InsertOne(ctx, o)
	return err
}

func (m *MongoOrderRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *MongoOrderRepository) FindByDisplayID(ctx context.Context, displayID string) (*model.Order, error) {
	return m.findOne(ctx, bson.M{"display_order_id": displayID})
}

// FindByShipment resolves an order from carrier correlation fields;
// shipment id wins over AWB when both are present.
func (m *MongoOrderRepository) FindByShipment(ctx context.Context, shipmentID, awbCode string) (*model.Order, error) {
	if shipmentID != "" {
		return m.findOne(ctx, bson.M{"shipping.shipment_id": shipmentID})
	}
	if awbCode != "" {
		return m.findOne(ctx, bson.M{"shipping.awb_code": awbCode})
	}
	return nil, ErrNotFound
}

func (m *MongoOrderRepository) findOne(ctx context.Context, filter bson.M) (*model.Order, error) {
	var res model.Order
	err := m.col.FindOne(ctx, filter).Decode(&res)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	return &res, err
}

// UpdateStatus moves the coarse status in one guarded write: the filter
// pins the expected current status so concurrent transitions cannot
// interleave, and the tracking event is pushed in the same operation.
func (m *MongoOrderRepository) UpdateStatus(ctx context.Context, id string, from, to status.Status, event model.TrackingEvent) error {
	filter := bson.M{"_id": id, "status": from}
	update := bson.M{
		"$set": bson.M{
			"status":     to,
			"updated_at": time.Now().UTC(),
		},
		"$push": bson.M{
			"shipping.tracking_history": event,
		},
	}

	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateLifecycle advances the carrier lifecycle, optionally promoting
// the coarse status at a checkpoint, all in one guarded write.
func (m *MongoOrderRepository) UpdateLifecycle(ctx context.Context, id string, from, to status.Lifecycle, promote *status.Status, event model.TrackingEvent) error {
	filter := bson.M{"_id": id}
	if from == "" {
		filter["shipping.lifecycle_status"] = bson.M{"$in": bson.A{nil, ""}}
	} else {
		filter["shipping.lifecycle_status"] = from
	}

	set := bson.M{
		"shipping.lifecycle_status": to,
		"updated_at":                time.Now().UTC(),
	}
	if promote != nil {
		set["status"] = *promote
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"shipping.tracking_history": event},
	}

	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// SetShipment records the carrier hand-off on an order that has not
// been shipped yet.
func (m *MongoOrderRepository) SetShipment(ctx context.Context, id, carrier, shipmentID, awbCode string, event model.TrackingEvent) error {
	filter := bson.M{"_id": id, "shipping.shipment_id": bson.M{"$in": bson.A{nil, ""}}}
	update := bson.M{
		"$set": bson.M{
			"shipping.carrier_name":       carrier,
			"shipping.shipment_id":        shipmentID,
			"shipping.awb_code":           awbCode,
			"shipping.lifecycle_status":   status.ShipmentCreated,
			"shipping.shipment_attempted": true,
			"updated_at":                  time.Now().UTC(),
		},
		"$push": bson.M{"shipping.tracking_history": event},
	}

	res, err := m.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// MarkManualReview flags a risk-gated order; the shipment attempt is
// recorded so the gate is not re-run blindly.
func (m *MongoOrderRepository) MarkManualReview(ctx context.Context, id string) error {
	update := bson.M{
		"$set": bson.M{
			"shipping.manual_review":      true,
			"shipping.shipment_attempted": true,
			"updated_at":                  time.Now().UTC(),
		},
	}

	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoOrderRepository) FindAll(ctx context.Context) ([]*model.Order, error) {
	return m.findMany(ctx, bson.M{})
}

func (m *MongoOrderRepository) FindByStatus(ctx context.Context, s status.Status) ([]*model.Order, error) {
	return m.findMany(ctx, bson.M{"status": s})
}

func (m *MongoOrderRepository) FindByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	return m.findMany(ctx, bson.M{"user_id": userID})
}

func (m *MongoOrderRepository) findMany(ctx context.Context, filter bson.M) ([]*model.Order, error) {
	cur, err := m.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*model.Order
	for cur.Next(ctx) {
		var v model.Order
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, cur.Err()
}
