package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-fulfillment-service/internal/model"
	"order-fulfillment-service/internal/status"
)

func TestToSummaries(t *testing.T) {
	created := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	orders := []*model.Order{
		{
			ID:             "ord-1",
			DisplayOrderID: "ORD-260307-1001",
			UserID:         "user-1",
			Status:         status.Shipped,
			Total:          330_000,
			Shipping:       model.Shipping{LifecycleStatus: status.InTransit},
			CreatedAt:      created,
			UpdatedAt:      created.Add(time.Hour),
		},
		{
			ID:             "ord-2",
			DisplayOrderID: "ORD-260307-1002",
			UserID:         "user-2",
			Status:         status.Confirmed,
			Total:          50_000,
			CreatedAt:      created,
			UpdatedAt:      created,
		},
	}

	out := toSummaries(orders)
	require.Len(t, out, 2)

	assert.Equal(t, "ord-1", out[0].ID)
	assert.Equal(t, "ORD-260307-1001", out[0].DisplayOrderID)
	assert.Equal(t, "shipped", out[0].Status)
	assert.Equal(t, "in_transit", out[0].LifecycleStatus)
	assert.Equal(t, int64(330_000), out[0].Total)

	// An order without a shipment has no lifecycle status yet.
	assert.Empty(t, out[1].LifecycleStatus)
	assert.Equal(t, "confirmed", out[1].Status)

	assert.Empty(t, toSummaries(nil))
}
