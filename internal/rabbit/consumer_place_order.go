package rabbit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"order-fulfillment-service/internal/dto"
	"order-fulfillment-service/internal/service"
)

// PlaceOrderConsumer creates a fulfillment order when the checkout
// service announces a completed (payment-confirmed) order.
type PlaceOrderConsumer struct {
	Service *service.OrderService
	Log     zerolog.Logger
}

func NewPlaceOrderConsumer(s *service.OrderService, log zerolog.Logger) *PlaceOrderConsumer {
	return &PlaceOrderConsumer{
		Service: s,
		Log:     log.With().Str("component", "place_order_consumer").Logger(),
	}
}

type PlacedOrderMessage struct {
	CorrelationID string `json:"correlation_id"`
	Exchange      string `json:"exchange"`
	RoutingKey    string `json:"routing_key"`
	Message       struct {
		OrderID     string            `json:"orderId"`
		UserID      string            `json:"userId"`
		Items       []dto.LineItemDTO `json:"items"`
		ShippingFee int64             `json:"shippingFee"`
		Address     dto.AddressDTO    `json:"address"`
		Payment     dto.PaymentDTO    `json:"payment"`
	} `json:"message"`
}

func (c *PlaceOrderConsumer) Handle(msg []byte) error {
	var event PlacedOrderMessage
	if err := json.Unmarshal(msg, &event); err != nil {
		c.Log.Error().Err(err).Msg("unparseable order_placed message")
		return err
	}

	order, err := c.Service.CreateOrder(context.Background(), dto.CreateOrderRequest{
		OrderID:     event.Message.OrderID,
		UserID:      event.Message.UserID,
		Items:       event.Message.Items,
		ShippingFee: event.Message.ShippingFee,
		Address:     event.Message.Address,
		Payment:     event.Message.Payment,
	})
	if err != nil {
		// Redelivery of an order we already created is not a failure.
		if errors.Is(err, service.ErrOrderAlreadyExists) {
			c.Log.Debug().Str("order_id", event.Message.OrderID).Msg("order_placed redelivery ignored")
			return nil
		}
		c.Log.Error().Err(err).Str("order_id", event.Message.OrderID).Msg("creating order from event")
		return err
	}

	c.Log.Info().
		Str("order_id", order.ID).
		Str("display_order_id", order.DisplayOrderID).
		Str("correlation_id", event.CorrelationID).
		Msg("order created from order_placed event")
	return nil
}
