package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"order-fulfillment-service/internal/model"
)

// IndexSpec declares one required query index.
type IndexSpec struct {
	Collection    string
	Keys          bson.D
	Unique        bool
	PartialFilter bson.D
}

func (s IndexSpec) String() string {
	name := s.Collection
	for _, k := range s.Keys {
		name += fmt.Sprintf(".%s_%v", k.Key, k.Value)
	}
	return name
}

// DesiredIndexes is the declared desired state the reconciliation job
// audits against. The partial unique index on provider_event_id is what
// enforces "at most one non-duplicate ledger entry per event id".
func DesiredIndexes() []IndexSpec {
	return []IndexSpec{
		{
			Collection: "orders",
			Keys:       bson.D{{Key: "display_order_id", Value: 1}},
			Unique:     true,
		},
		{
			Collection: "orders",
			Keys:       bson.D{{Key: "user_id", Value: 1}},
		},
		{
			Collection: "orders",
			Keys:       bson.D{{Key: "status", Value: 1}},
		},
		{
			Collection: "orders",
			Keys:       bson.D{{Key: "shipping.shipment_id", Value: 1}},
		},
		{
			Collection: "orders",
			Keys:       bson.D{{Key: "shipping.awb_code", Value: 1}},
		},
		{
			Collection: "webhook_events",
			Keys:       bson.D{{Key: "provider_event_id", Value: 1}},
			Unique:     true,
			PartialFilter: bson.D{{Key: "status", Value: bson.D{
				{Key: "$ne", Value: model.WebhookDuplicate},
			}}},
		},
		{
			Collection: "webhook_events",
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "next_retry_at", Value: 1},
			},
		},
	}
}

// ReconcileReport summarizes one reconciliation run.
type ReconcileReport struct {
	Checked int
	Missing []string
	Applied []string
	// Failures maps index spec to its creation error; one failed index
	// never aborts the rest of the set.
	Failures map[string]error
}

// IndexStore is the slice of the database the reconciler needs.
type IndexStore interface {
	ListIndexKeys(ctx context.Context, collection string) ([]bson.D, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

// ReconcileIndexes compares the declared index set against what exists
// and, in apply mode, creates whatever is missing. Idempotent: a second
// apply run creates nothing.
func ReconcileIndexes(ctx context.Context, store IndexStore, desired []IndexSpec, apply bool) (*ReconcileReport, error) {
	report := &ReconcileReport{Failures: map[string]error{}}

	existing := map[string][]bson.D{}

	for _, spec := range desired {
		report.Checked++

		keys, ok := existing[spec.Collection]
		if !ok {
			var err error
			keys, err = store.ListIndexKeys(ctx, spec.Collection)
			if err != nil {
				report.Failures[spec.String()] = err
				continue
			}
			existing[spec.Collection] = keys
		}

		if containsKeyShape(keys, spec.Keys) {
			continue
		}
		report.Missing = append(report.Missing, spec.String())

		if !apply {
			continue
		}
		if err := store.CreateIndex(ctx, spec); err != nil {
			report.Failures[spec.String()] = err
			continue
		}
		report.Applied = append(report.Applied, spec.String())
		existing[spec.Collection] = append(existing[spec.Collection], spec.Keys)
	}

	return report, nil
}

// MongoIndexStore implements IndexStore against a live database.
type MongoIndexStore struct {
	db *mongo.Database
}

func NewMongoIndexStore(db *mongo.Database) *MongoIndexStore {
	return &MongoIndexStore{db: db}
}

func (s *MongoIndexStore) ListIndexKeys(ctx context.Context, collection string) ([]bson.D, error) {
	cur, err := s.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing indexes on %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var keys []bson.D
	for cur.Next(ctx) {
		// Decode the key document into bson.D: field order matters for
		// compound indexes.
		var idx struct {
			Key bson.D `bson:"key"`
		}
		if err := cur.Decode(&idx); err != nil {
			return nil, err
		}
		keys = append(keys, idx.Key)
	}
	return keys, cur.Err()
}

func (s *MongoIndexStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	opts := options.Index()
	if spec.Unique {
		opts.SetUnique(true)
	}
	if spec.PartialFilter != nil {
		opts.SetPartialFilterExpression(spec.PartialFilter)
	}

	col := s.db.Collection(spec.Collection)
	_, err := col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: spec.Keys, Options: opts})
	if err != nil {
		return fmt.Errorf("creating index %s: %w", spec.String(), err)
	}
	return nil
}

func containsKeyShape(existing []bson.D, want bson.D) bool {
	for _, got := range existing {
		if keyShapesEqual(got, want) {
			return true
		}
	}
	return false
}

// keyShapesEqual compares two index key documents field by field.
// Direction values come back from the server in varying numeric types
// (int32, int64, float64), so they are normalized before comparison.
func keyShapesEqual(a, b bson.D) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Key != b[i].Key {
			return false
		}
		if normalizeDirection(a[i].Value) != normalizeDirection(b[i].Value) {
			return false
		}
	}
	return true
}

func normalizeDirection(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return v
	}
}
