package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"order-fulfillment-service/internal/model"
	"order-fulfillment-service/internal/repository"
	"order-fulfillment-service/internal/status"
)

// In-memory fakes honoring the same guarded-update semantics as the
// Mongo repositories.

type fakeCounterRepo struct {
	mu   sync.Mutex
	seqs map[string]int64
	fail error
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{seqs: map[string]int64{}}
}

func (f *fakeCounterRepo) Increment(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	f.seqs[key]++
	return f.seqs[key], nil
}

type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order
	fail   error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]*model.Order{}}
}

func (f *fakeOrderRepo) copyOf(o *model.Order) *model.Order {
	c := *o
	c.Shipping.TrackingHistory = append([]model.TrackingEvent(nil), o.Shipping.TrackingHistory...)
	return &c
}

func (f *fakeOrderRepo) Insert(_ context.Context, o *model.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if _, ok := f.orders[o.ID]; ok {
		return errors.New("duplicate id")
	}
	f.orders[o.ID] = f.copyOf(o)
	return nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, id string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if o, ok := f.orders[id]; ok {
		return f.copyOf(o), nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrderRepo) FindByDisplayID(_ context.Context, displayID string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	for _, o := range f.orders {
		if o.DisplayOrderID == displayID {
			return f.copyOf(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrderRepo) FindByShipment(_ context.Context, shipmentID, awbCode string) (*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	for _, o := range f.orders {
		if shipmentID != "" && o.Shipping.ShipmentID == shipmentID {
			return f.copyOf(o), nil
		}
		if shipmentID == "" && awbCode != "" && o.Shipping.AWBCode == awbCode {
			return f.copyOf(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, id string, from, to status.Status, event model.TrackingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Status != from {
		return repository.ErrConflict
	}
	o.Status = to
	o.Shipping.TrackingHistory = append(o.Shipping.TrackingHistory, event)
	o.UpdatedAt = event.Timestamp
	return nil
}

func (f *fakeOrderRepo) UpdateLifecycle(_ context.Context, id string, from, to status.Lifecycle, promote *status.Status, event model.TrackingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Shipping.LifecycleStatus != from {
		return repository.ErrConflict
	}
	o.Shipping.LifecycleStatus = to
	if promote != nil {
		o.Status = *promote
	}
	o.Shipping.TrackingHistory = append(o.Shipping.TrackingHistory, event)
	o.UpdatedAt = event.Timestamp
	return nil
}

func (f *fakeOrderRepo) SetShipment(_ context.Context, id, carrier, shipmentID, awbCode string, event model.TrackingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok || o.Shipping.ShipmentID != "" {
		return repository.ErrConflict
	}
	o.Shipping.CarrierName = carrier
	o.Shipping.ShipmentID = shipmentID
	o.Shipping.AWBCode = awbCode
	o.Shipping.LifecycleStatus = status.ShipmentCreated
	o.Shipping.ShipmentAttempted = true
	o.Shipping.TrackingHistory = append(o.Shipping.TrackingHistory, event)
	return nil
}

func (f *fakeOrderRepo) MarkManualReview(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.Shipping.ManualReview = true
	o.Shipping.ShipmentAttempted = true
	return nil
}

func (f *fakeOrderRepo) FindAll(_ context.Context) ([]*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, o := range f.orders {
		out = append(out, f.copyOf(o))
	}
	return out, nil
}

func (f *fakeOrderRepo) FindByStatus(_ context.Context, s status.Status) ([]*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, o := range f.orders {
		if o.Status == s {
			out = append(out, f.copyOf(o))
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) FindByUserID(_ context.Context, userID string) ([]*model.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, f.copyOf(o))
		}
	}
	return out, nil
}

type fakeCarrier struct {
	calls int
	fail  error
}

func (f *fakeCarrier) CreateShipment(_ context.Context, o *model.Order) (ShipmentRef, error) {
	f.calls++
	if f.fail != nil {
		return ShipmentRef{}, f.fail
	}
	return ShipmentRef{
		Carrier:    "speedpost",
		ShipmentID: "SHP-" + o.ID,
		AWBCode:    "AWB-" + o.ID,
	}, nil
}

type fakeLedger struct {
	mu      sync.Mutex
	entries []*model.WebhookLogEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{}
}

func (f *fakeLedger) Insert(_ context.Context, e *model.WebhookLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.Status != model.WebhookDuplicate {
		for _, ex := range f.entries {
			if ex.ProviderEventID == e.ProviderEventID && ex.Status != model.WebhookDuplicate {
				return mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000}}}
			}
		}
	}
	e.ID = primitive.NewObjectID()
	c := *e
	f.entries = append(f.entries, &c)
	return nil
}

func (f *fakeLedger) find(id primitive.ObjectID) *model.WebhookLogEntry {
	for _, e := range f.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (f *fakeLedger) FindActiveByProviderEventID(_ context.Context, providerEventID string) (*model.WebhookLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.entries {
		if e.ProviderEventID == providerEventID && e.Status != model.WebhookDuplicate {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) FindByID(_ context.Context, id primitive.ObjectID) (*model.WebhookLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e := f.find(id); e != nil {
		c := *e
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeLedger) MarkProcessed(_ context.Context, id primitive.ObjectID, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	e.Status = model.WebhookProcessed
	e.Result = result
	e.ProcessedAt = &now
	return nil
}

func (f *fakeLedger) MarkDuplicate(_ context.Context, id primitive.ObjectID, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	e.Status = model.WebhookDuplicate
	e.Result = result
	return nil
}

func (f *fakeLedger) MarkFailed(_ context.Context, id primitive.ObjectID, retryCount int, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	e.Status = model.WebhookFailed
	e.RetryCount = retryCount
	e.Result = result
	return nil
}

func (f *fakeLedger) ScheduleRetry(_ context.Context, id primitive.ObjectID, retryCount int, nextRetryAt time.Time, result string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	e.Status = model.WebhookPending
	e.RetryCount = retryCount
	e.NextRetryAt = nextRetryAt
	e.Result = result
	return nil
}

func (f *fakeLedger) ResetForReplay(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.find(id)
	if e == nil || e.Status != model.WebhookFailed {
		return repository.ErrNotFound
	}
	e.Status = model.WebhookPending
	e.RetryCount = 0
	e.NextRetryAt = time.Now().UTC()
	return nil
}

func (f *fakeLedger) FindDue(_ context.Context, now time.Time, limit int64) ([]*model.WebhookLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WebhookLogEntry
	for _, e := range f.entries {
		if e.Status == model.WebhookPending && !e.NextRetryAt.IsZero() && !e.NextRetryAt.After(now) {
			c := *e
			out = append(out, &c)
			if int64(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeLedger) FindFailed(_ context.Context) ([]*model.WebhookLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WebhookLogEntry
	for _, e := range f.entries {
		if e.Status == model.WebhookFailed {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (f *fakeLedger) byStatus(status string) []*model.WebhookLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.WebhookLogEntry
	for _, e := range f.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}
