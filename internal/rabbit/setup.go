// setup.go
package rabbit

import (
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"order-fulfillment-service/internal/service"
)

// SetupConsumers binds this service's queue to the checkout fanout
// exchange and starts consuming.
func SetupConsumers(ch *amqp091.Channel, svc *service.OrderService, log zerolog.Logger) error {
	consumer := NewPlaceOrderConsumer(svc, log)

	q, err := ch.QueueDeclare(
		"order_fulfillment_service_orders",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	err = ch.QueueBind(
		q.Name,
		"", // fanout ignores the routing key
		"order_placed",
		false,
		nil,
	)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for m := range msgs {
			if err := consumer.Handle(m.Body); err != nil {
				log.Error().Err(err).Msg("handling order_placed message")
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("subscribed to order_placed exchange")
	return nil
}
