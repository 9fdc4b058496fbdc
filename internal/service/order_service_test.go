package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-fulfillment-service/internal/dto"
	"order-fulfillment-service/internal/risk"
	"order-fulfillment-service/internal/status"
)

type orderFixture struct {
	svc     *OrderService
	orders  *fakeOrderRepo
	carrier *fakeCarrier
}

func newOrderFixture() *orderFixture {
	orders := newFakeOrderRepo()
	carrier := &fakeCarrier{}
	svc := NewOrderService(orders, newFakeCounterRepo(), carrier, risk.NewAnalyzer(0), "ORD", zerolog.Nop())
	return &orderFixture{svc: svc, orders: orders, carrier: carrier}
}

func validCreateRequest() dto.CreateOrderRequest {
	return dto.CreateOrderRequest{
		UserID: "user-1",
		Items: []dto.LineItemDTO{
			{ProductID: "p1", Name: "Kettle", Quantity: 2, UnitPrice: 150_000},
			{ProductID: "p2", Name: "Mug", Quantity: 1, UnitPrice: 25_000},
		},
		ShippingFee: 5_000,
		Address: dto.AddressDTO{
			FullName:     "Asha Kulkarni",
			Phone:        "9876543210",
			AddressLine1: "14 MG Road, 2nd Cross",
			City:         "Bengaluru",
			State:        "Karnataka",
			PostalCode:   "560001",
		},
		Payment: dto.PaymentDTO{Method: "prepaid", Status: "captured"},
	}
}

func TestCreateOrder(t *testing.T) {
	fx := newOrderFixture()

	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, displayIDRe, o.DisplayOrderID)
	assert.Equal(t, status.Confirmed, o.Status)
	assert.Equal(t, status.ReadyToShip, o.Shipping.LifecycleStatus)
	assert.Equal(t, int64(325_000), o.Subtotal)
	assert.Equal(t, int64(330_000), o.Total)
	require.Len(t, o.Shipping.TrackingHistory, 1)

	stored, err := fx.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.DisplayOrderID, stored.DisplayOrderID)

	byDisplay, err := fx.svc.GetOrder(context.Background(), o.DisplayOrderID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byDisplay.ID)
}

func TestCreateOrderIdempotentOnUpstreamID(t *testing.T) {
	fx := newOrderFixture()

	req := validCreateRequest()
	req.OrderID = "checkout-42"
	_, err := fx.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	_, err = fx.svc.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrOrderAlreadyExists)
}

func TestUpdateStatusValidTransition(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	updated, err := fx.svc.UpdateStatus(context.Background(), o.ID, status.Processing, "picking started", "op-1")
	require.NoError(t, err)
	assert.Equal(t, status.Processing, updated.Status)

	stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
	assert.Equal(t, status.Processing, stored.Status)
	assert.Len(t, stored.Shipping.TrackingHistory, 2)
}

func TestUpdateStatusRejection(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = fx.svc.UpdateStatus(context.Background(), o.ID, status.Delivered, "", "op-1")
	var te *status.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, status.Confirmed, te.From)
	assert.Equal(t, status.Delivered, te.To)

	// Rejection is a no-op: nothing was written.
	stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
	assert.Equal(t, status.Confirmed, stored.Status)
	assert.Len(t, stored.Shipping.TrackingHistory, 1)
}

func TestUpdateStatusSameStateNoOp(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	updated, err := fx.svc.UpdateStatus(context.Background(), o.ID, status.Confirmed, "", "op-1")
	require.NoError(t, err)
	assert.Equal(t, status.Confirmed, updated.Status)
	assert.Len(t, updated.Shipping.TrackingHistory, 1)
}

func TestUpdateStatusTerminalStatesLocked(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = fx.svc.UpdateStatus(context.Background(), o.ID, status.Cancelled, "customer request", "op-1")
	require.NoError(t, err)

	_, err = fx.svc.UpdateStatus(context.Background(), o.ID, status.Processing, "", "op-1")
	var te *status.TransitionError
	assert.True(t, errors.As(err, &te))
}

func TestApplyLifecyclePromotesAtCheckpoints(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)
	_, err = fx.svc.UpdateStatus(context.Background(), o.ID, status.Processing, "", "op-1")
	require.NoError(t, err)

	steps := []struct {
		lifecycle status.Lifecycle
		want      status.Status
	}{
		{status.ShipmentCreated, status.Processing},
		{status.PickupScheduled, status.Processing},
		{status.PickedUp, status.Shipped},
		{status.InTransit, status.Shipped},
		{status.OutForDelivery, status.Shipped},
		{status.LifecycleDelivered, status.Delivered},
	}

	for _, step := range steps {
		order, err := fx.svc.GetOrder(context.Background(), o.ID)
		require.NoError(t, err)
		require.NoError(t, fx.svc.ApplyLifecycle(context.Background(), order, step.lifecycle, "", ""))

		stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
		assert.Equal(t, step.lifecycle, stored.Shipping.LifecycleStatus, "after %s", step.lifecycle)
		assert.Equal(t, step.want, stored.Status, "after %s", step.lifecycle)
	}

	stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
	assert.Len(t, stored.Shipping.TrackingHistory, 2+len(steps))
}

func TestApplyLifecycleRejectsStale(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	order, _ := fx.svc.GetOrder(context.Background(), o.ID)
	require.NoError(t, fx.svc.ApplyLifecycle(context.Background(), order, status.InTransit, "", ""))

	err = fx.svc.ApplyLifecycle(context.Background(), order, status.PickedUp, "", "")
	assert.ErrorIs(t, err, ErrStaleLifecycle)

	stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
	assert.Equal(t, status.InTransit, stored.Shipping.LifecycleStatus)
}

func TestUpdateLifecycleUnknownStatus(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, err = fx.svc.UpdateLifecycle(context.Background(), o.ID, "teleported", "", "")
	assert.ErrorIs(t, err, ErrUnknownLifecycle)
}

func TestCreateShipmentHappyPath(t *testing.T) {
	fx := newOrderFixture()
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	shipped, report, err := fx.svc.CreateShipment(context.Background(), o.ID)
	require.NoError(t, err)

	assert.Zero(t, report.HighSeverityCount)
	assert.Equal(t, 1, fx.carrier.calls)
	assert.Equal(t, status.Processing, shipped.Status)
	assert.Equal(t, status.ShipmentCreated, shipped.Shipping.LifecycleStatus)
	assert.NotEmpty(t, shipped.Shipping.ShipmentID)
	assert.NotEmpty(t, shipped.Shipping.AWBCode)
	assert.True(t, shipped.Shipping.ShipmentAttempted)
}

func TestCreateShipmentRiskGateBlocks(t *testing.T) {
	fx := newOrderFixture()
	req := validCreateRequest()
	req.Address.PostalCode = "042345" // high-severity finding
	o, err := fx.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	blocked, report, err := fx.svc.CreateShipment(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrManualReviewRequired)
	assert.Positive(t, report.HighSeverityCount)
	assert.True(t, blocked.Shipping.ManualReview)
	assert.Zero(t, fx.carrier.calls, "no carrier hand-off for a gated order")

	// The gate decision is durable.
	stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
	assert.True(t, stored.Shipping.ManualReview)
	assert.True(t, stored.Shipping.ShipmentAttempted)

	_, _, err = fx.svc.CreateShipment(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrShipmentAlreadyAttempted)
}

func TestCreateShipmentCarrierFailure(t *testing.T) {
	fx := newOrderFixture()
	fx.carrier.fail = errors.New("carrier timeout")
	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	_, _, err = fx.svc.CreateShipment(context.Background(), o.ID)
	assert.Error(t, err)
}

func TestRiskReport(t *testing.T) {
	fx := newOrderFixture()
	req := validCreateRequest()
	req.Payment.Method = "cod"
	req.Items = []dto.LineItemDTO{{ProductID: "p1", Quantity: 1, UnitPrice: 40_000_000}}
	o, err := fx.svc.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	_, report, err := fx.svc.Risk(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, report.HasRisks)
	assert.Equal(t, 1, report.RiskCount)
}

func TestTrackingHistoryOrderedByReceipt(t *testing.T) {
	fx := newOrderFixture()
	base := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	clock := base
	fx.svc.WithClock(func() time.Time { return clock })

	o, err := fx.svc.CreateOrder(context.Background(), validCreateRequest())
	require.NoError(t, err)

	for i, l := range []status.Lifecycle{status.PickupScheduled, status.InTransit} {
		clock = base.Add(time.Duration(i+1) * time.Minute)
		order, _ := fx.svc.GetOrder(context.Background(), o.ID)
		require.NoError(t, fx.svc.ApplyLifecycle(context.Background(), order, l, "", ""))
	}

	stored, _ := fx.svc.GetOrder(context.Background(), o.ID)
	history := stored.Shipping.TrackingHistory
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].Timestamp.Before(history[i-1].Timestamp))
	}
}
